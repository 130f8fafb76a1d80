package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/deixis/steprun/internal/actions"
	"github.com/deixis/steprun/internal/workflow"
)

var actionCmd = &cobra.Command{
	Use:     "action",
	Short:   "Run configured steps inside a GitHub Actions job",
	GroupID: "steps",
	Long: `Run configured steps as a GitHub Actions step.

Inputs are read from INPUT_* variables:
  steps               step names, one per line (default: all)
  keep-going          run every step instead of stopping at the first failure
  fail-on-stderr      true or false, replaces the configured default (default: config)
  working-directory   directory to load .steprun from (default: current)

Each step runs in its own log group, failures are reported as error
annotations and a results table is appended to the job summary. The outputs
run-id, status and failed-step are set for later steps.`,
	Args: cobra.NoArgs,
	RunE: runAction,
}

func init() {
	rootCmd.AddCommand(actionCmd)
}

func runAction(cmd *cobra.Command, args []string) error {
	host := actions.NewHost()

	names, err := host.GetMultilineInput("steps", actions.InputOptions{})
	if err != nil {
		return err
	}
	keepGoing, err := optionalBool(host, "keep-going", false)
	if err != nil {
		return err
	}
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining working directory: %w", err)
	}
	if wd, _ := host.GetInput("working-directory", actions.InputOptions{}); wd != "" {
		dir = actions.ToPlatformPath(wd)
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(os.Getenv("GITHUB_WORKSPACE"), dir)
		}
	}

	level := "info"
	if host.IsDebug() {
		level = "debug"
	}
	a, err := newApp(dir, level)
	if err != nil {
		host.SetFailed(err)
		os.Exit(host.ExitCode())
	}
	defer a.Close()

	defaults := &a.loaded.Config.Defaults
	defaults.FailOnStdErr, err = optionalBool(host, "fail-on-stderr", defaults.FailOnStdErr)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	eng := a.engine(0)
	eng.Host = host

	rr, err := eng.Run(ctx, names, workflow.RunOptions{KeepGoing: keepGoing})
	if err != nil {
		host.SetFailed(err)
		a.Close()
		os.Exit(host.ExitCode())
	}

	status := "passed"
	failedStep := ""
	if f := rr.Failed(); f != nil {
		status = "failed"
		failedStep = f.Name
		host.SetFailed(fmt.Sprintf("step %s: %s", f.Name, f.Status))
	}
	for name, value := range map[string]string{
		"run-id":      rr.ID,
		"status":      status,
		"failed-step": failedStep,
	} {
		if err := host.SetOutput(name, value); err != nil {
			a.log.Warn().Err(err).Str("output", name).Msg("setting output")
		}
	}

	if code := host.ExitCode(); code != 0 {
		a.Close()
		os.Exit(code)
	}
	return nil
}

// optionalBool reads a boolean input, returning def when it is left empty.
func optionalBool(host *actions.Host, name string, def bool) (bool, error) {
	if v, _ := host.GetInput(name, actions.InputOptions{}); v == "" {
		return def, nil
	}
	return host.GetBooleanInput(name, actions.InputOptions{})
}
