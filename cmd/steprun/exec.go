package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/deixis/steprun/internal/runner"
)

type execFlagSet struct {
	dir              string
	env              []string
	input            string
	inputFile        string
	silent           bool
	failOnStderr     bool
	ignoreReturnCode bool
	drainGrace       time.Duration
	timeout          time.Duration
	json             bool
}

var execFlags execFlagSet

var execCmd = &cobra.Command{
	Use:     "exec [flags] -- program [args...]",
	Short:   "Run a single program",
	GroupID: "steps",
	Long: `Run a program with arguments, without a shell.

The command line and the program's output are echoed as they arrive unless
--silent is set. The program fails on a non-zero exit code, unless
--ignore-return-code is set, and on any output to stderr with --fail-on-stderr.
steprun exits with the program's exit code when it fails on it, and 1 for
any other failure.

Examples:
  steprun exec -- go vet ./...
  steprun exec --env GOFLAGS=-mod=mod --dir tools -- go build
  steprun exec --input-file query.sql -- psql
  steprun exec --json --silent -- ls -la`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	f := execCmd.Flags()
	f.StringVarP(&execFlags.dir, "dir", "C", "", "working directory (default: current directory)")
	f.StringArrayVarP(&execFlags.env, "env", "e", nil, "set an environment variable, as KEY=VALUE (repeatable)")
	f.StringVar(&execFlags.input, "input", "", "text to write to the program's stdin")
	f.StringVar(&execFlags.inputFile, "input-file", "", "file to write to the program's stdin (- for steprun's stdin)")
	f.BoolVarP(&execFlags.silent, "silent", "s", false, "do not echo the command line and output")
	f.BoolVar(&execFlags.failOnStderr, "fail-on-stderr", false, "fail if anything is written to stderr")
	f.BoolVar(&execFlags.ignoreReturnCode, "ignore-return-code", false, "do not fail on a non-zero exit code")
	f.DurationVar(&execFlags.drainGrace, "drain-grace", 0, "wait for output after exit (default 10s, negative: do not wait)")
	f.DurationVar(&execFlags.timeout, "timeout", 0, "override the configured timeout (e.g. 5m)")
	f.BoolVar(&execFlags.json, "json", false, "print the result as JSON")
	f.SetInterspersed(false)
	execCmd.MarkFlagsMutuallyExclusive("input", "input-file")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining working directory: %w", err)
	}
	a, err := newApp(cwd, "warn")
	if err != nil {
		return err
	}
	defer a.Close()

	opts, err := execOptions(cwd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	eng := a.execEngine(execFlags.timeout)
	if execFlags.json {
		eng.Stdout = os.Stderr
	}

	rr, err := eng.Exec(ctx, runner.Command{Program: args[0], Args: args[1:]}, opts)
	if err != nil {
		return err
	}

	if execFlags.json {
		if err := writeJSON(os.Stdout, rr); err != nil {
			return err
		}
	} else if f := rr.Failed(); f != nil {
		fmt.Fprintf(os.Stderr, "steprun: %s\n", f.Message)
	}

	if code := exitCode(rr); code != 0 {
		a.Close()
		os.Exit(code)
	}
	return nil
}

func execOptions(cwd string) (runner.Options, error) {
	opts := runner.Options{
		Dir:              cwd,
		Silent:           execFlags.silent,
		FailOnStdErr:     execFlags.failOnStderr,
		IgnoreReturnCode: execFlags.ignoreReturnCode,
		DrainGrace:       execFlags.drainGrace,
	}
	if execFlags.dir != "" {
		opts.Dir = execFlags.dir
		if !filepath.IsAbs(opts.Dir) {
			opts.Dir = filepath.Join(cwd, opts.Dir)
		}
	}

	env, err := parseEnv(execFlags.env)
	if err != nil {
		return opts, err
	}
	opts.Env = env

	switch {
	case execFlags.inputFile == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return opts, fmt.Errorf("reading stdin: %w", err)
		}
		opts.Input = data
	case execFlags.inputFile != "":
		data, err := os.ReadFile(execFlags.inputFile)
		if err != nil {
			return opts, fmt.Errorf("reading input file: %w", err)
		}
		opts.Input = data
	case execFlags.input != "":
		opts.Input = []byte(execFlags.input)
	}
	return opts, nil
}

// parseEnv turns KEY=VALUE pairs into a map. Later pairs win.
func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env %q: want KEY=VALUE", p)
		}
		env[k] = v
	}
	return env, nil
}
