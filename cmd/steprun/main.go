// Command steprun runs external programs and the command steps configured
// in a repository's .steprun file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/deixis/steprun"
	"github.com/deixis/steprun/internal/config"
	"github.com/deixis/steprun/internal/logging"
	"github.com/deixis/steprun/internal/metrics"
	"github.com/deixis/steprun/internal/report"
	"github.com/deixis/steprun/internal/runner"
	"github.com/deixis/steprun/internal/workflow"
)

// Results of the last runs stay in memory for the MCP inspect tool.
const storeCapacity = 5

var (
	logLevel  string
	logFormat string
	logFile   string
)

var rootCmd = &cobra.Command{
	Use:   "steprun",
	Short: "Run programs and configured command steps",
	Long: `steprun - command step runner

Runs external programs without a shell, streams their output line by line
and decides success from the exit code and, optionally, from output on stderr.
Steps are configured in a .steprun file at the repository root.

Commands:
  exec     Run a single program
  run      Run configured steps in order
  action   Run configured steps inside a GitHub Actions job
  mcp      Start the MCP server

Examples:
  steprun exec -- go test ./...           # Run one program
  steprun exec --fail-on-stderr -- make   # Fail if make writes to stderr
  steprun run                             # Run every configured step
  steprun run lint test --keep-going      # Run two steps, even if lint fails`,
	Version:       steprun.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error (default from .steprun, else warn)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to a rotated file instead of stderr")

	rootCmd.AddGroup(&cobra.Group{ID: "steps", Title: "Step Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "server", Title: "Server Commands:"})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "steprun: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every command needs, built from the working directory's
// configuration.
type app struct {
	workspace string
	loaded    *config.LoadResult
	log       zerolog.Logger
	closeLog  io.Closer
	metrics   *metrics.Recorder
	store     report.Store
}

// newApp loads the configuration found from dir and builds the logger.
// defaultLevel applies when neither the flag nor the config sets one.
func newApp(dir, defaultLevel string) (*app, error) {
	loaded, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	lc := logging.Config{
		Level:  pick(logLevel, loaded.Config.Log.Level, defaultLevel),
		Format: pick(logFormat, loaded.Config.Log.Format),
		File:   pick(logFile, loaded.Config.Log.File),
	}
	log, closer := logging.New(lc)

	return &app{
		workspace: dir,
		loaded:    loaded,
		log:       log,
		closeLog:  closer,
		metrics:   metrics.NewRecorder(),
		store:     report.NewLRUStore(storeCapacity, report.NewDiskStore("")),
	}, nil
}

func (a *app) Close() {
	_ = a.closeLog.Close()
}

// runner builds a runner rooted at the repository. A positive timeout
// replaces the configured one.
func (a *app) runner(timeout time.Duration) *runner.Runner {
	if timeout <= 0 {
		timeout = a.loaded.Config.Timeout()
	}
	return &runner.Runner{
		Workspace: a.loaded.RepoRoot,
		Timeout:   timeout,
	}
}

func (a *app) engine(timeout time.Duration) *workflow.Engine {
	return a.engineWith(a.runner(timeout))
}

// execEngine runs ad-hoc commands. The directory is whatever the caller
// asked for, so the runner is not bound to the repository.
func (a *app) execEngine(timeout time.Duration) *workflow.Engine {
	r := a.runner(timeout)
	r.Workspace = ""
	return a.engineWith(r)
}

func (a *app) engineWith(r *runner.Runner) *workflow.Engine {
	return &workflow.Engine{
		Config:   a.loaded.Config,
		Runner:   r,
		RepoRoot: a.loaded.RepoRoot,
		Log:      a.log.With().Str(logging.FieldComponent, "workflow").Logger(),
		Store:    a.store,
		Metrics:  a.metrics,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
}

// pick returns the first non-empty value.
func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitCode maps a finished run to the process exit code. A single failed
// program propagates its own exit code.
func exitCode(rr *report.RunResult) int {
	f := rr.Failed()
	if f == nil {
		return 0
	}
	if rr.Kind == report.Exec && f.FailureKind == runner.KindNonZeroExit.String() && f.ExitCode > 0 {
		return f.ExitCode
	}
	return 1
}
