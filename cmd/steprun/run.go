package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/deixis/steprun/internal/workflow"
)

var runFlags struct {
	keepGoing bool
	json      bool
	verbose   bool
	timeout   time.Duration
}

var runCmd = &cobra.Command{
	Use:     "run [steps...]",
	Short:   "Run configured steps in order",
	GroupID: "steps",
	Long: `Run the steps configured in .steprun, in the order they are configured.

With no arguments every step runs. Named steps run in configuration order,
not argument order. The run stops at the first step that fails unless
--keep-going is set; the remaining steps are reported as skipped.

Examples:
  steprun run                      # Run every step
  steprun run build test           # Run two steps
  steprun run --keep-going -v      # Run all, show stderr of the failed step`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.BoolVarP(&runFlags.keepGoing, "keep-going", "k", false, "run every step instead of stopping at the first failure")
	f.BoolVar(&runFlags.json, "json", false, "print the result as JSON")
	f.BoolVarP(&runFlags.verbose, "verbose", "v", false, "include the stderr of the failed step in the summary")
	f.DurationVar(&runFlags.timeout, "timeout", 0, "override the configured per-step timeout (e.g. 5m)")
	runCmd.ValidArgsFunction = completeSteps
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining working directory: %w", err)
	}
	a, err := newApp(cwd, "warn")
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	eng := a.engine(runFlags.timeout)
	if runFlags.json {
		eng.Stdout = os.Stderr
	}

	rr, err := eng.Run(ctx, args, workflow.RunOptions{KeepGoing: runFlags.keepGoing})
	if err != nil {
		return err
	}

	if runFlags.json {
		if err := writeJSON(os.Stdout, rr); err != nil {
			return err
		}
	} else {
		fmt.Print(workflow.FormatRun(rr, runFlags.verbose))
	}

	if code := exitCode(rr); code != 0 {
		a.Close()
		os.Exit(code)
	}
	return nil
}

// completeSteps offers the configured step names.
func completeSteps(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	a, err := newApp(cwd, "error")
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	defer a.Close()

	seen := make(map[string]bool, len(args))
	for _, arg := range args {
		seen[arg] = true
	}
	var names []string
	for _, n := range a.loaded.Config.StepNames() {
		if !seen[n] {
			names = append(names, n)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
