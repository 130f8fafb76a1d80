// Package workflow runs configured command steps and ad-hoc commands on top
// of the runner, and records the outcome as a report.RunResult. It is
// consumed by both the MCP server and the CLI commands.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/deixis/steprun/internal/actions"
	"github.com/deixis/steprun/internal/config"
	"github.com/deixis/steprun/internal/logging"
	"github.com/deixis/steprun/internal/metrics"
	"github.com/deixis/steprun/internal/report"
	"github.com/deixis/steprun/internal/runner"
)

// CommandRunner executes commands.
// Implemented by runner.Runner.
type CommandRunner interface {
	Output(ctx context.Context, c runner.Command, opts runner.Options) (*runner.Result, error)
}

// Engine holds shared dependencies for all workflow operations.
type Engine struct {
	Config   *config.Config
	Runner   CommandRunner
	RepoRoot string // env files and step dirs resolve against it

	Log     zerolog.Logger
	Store   report.Store      // optional; every run is saved when set
	Metrics *metrics.Recorder // optional
	Host    *actions.Host     // optional; enables GitHub Actions output

	// Stdout and Stderr receive the command echo of non-silent steps.
	Stdout io.Writer
	Stderr io.Writer
}

// Status maps an execution error to a step status.
func Status(err error) string {
	if err == nil {
		return report.StatusPass
	}
	switch runner.KindOf(err) {
	case runner.KindStdErrProduced, runner.KindNonZeroExit:
		return report.StatusFail
	case runner.KindLaunch:
		if errors.Is(err, exec.ErrNotFound) {
			return report.StatusUnavailable
		}
	}
	return report.StatusError
}

// failureKind names the runner error kind, or "" for errors the runner did
// not classify (such as a cancelled context).
func failureKind(err error) string {
	var execErr *runner.ExecError
	if errors.As(err, &execErr) {
		return execErr.Kind.String()
	}
	return ""
}

// execute runs one command and turns its outcome into a StepRecord.
func (e *Engine) execute(ctx context.Context, kind report.Kind, name string, c runner.Command, opts runner.Options) report.StepRecord {
	log := e.Log.With().Str(logging.FieldStep, name).Logger()

	opts.Listeners = e.listeners(log, opts.Listeners)
	if opts.Stdout == nil {
		opts.Stdout = e.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = e.Stderr
	}

	e.Metrics.Start(string(kind))
	log.Info().Str("command", c.String()).Msg("running")

	res, err := e.Runner.Output(ctx, c, opts)

	rec := report.StepRecord{
		Name:        name,
		Argv:        append([]string{c.Program}, c.Args...),
		Dir:         opts.Dir,
		Status:      Status(err),
		FailureKind: failureKind(err),
		ExitCode:    -1,
	}
	if err != nil {
		rec.Message = err.Error()
	}
	if res != nil {
		rec.ExitCode = res.ExitCode
		rec.Stdout = res.Stdout
		rec.Stderr = res.Stderr
		rec.Truncated = res.Truncated
		rec.DurationMS = res.Duration.Milliseconds()
		e.Metrics.Observe(string(kind), rec.Status, res.Duration, res.Truncated)
	} else {
		e.Metrics.Observe(string(kind), rec.Status, 0, false)
	}

	ev := log.Info()
	if rec.Status != report.StatusPass {
		ev = log.Warn().Str("error", rec.Message)
	}
	ev.Str("status", rec.Status).
		Int(logging.FieldExitCode, rec.ExitCode).
		Int64(logging.FieldDuration, rec.DurationMS).
		Bool("truncated", rec.Truncated).
		Msg("finished")

	return rec
}

// listeners logs lines and debug events, then forwards them to next.
func (e *Engine) listeners(log zerolog.Logger, next runner.Listeners) runner.Listeners {
	if next == nil {
		next = runner.ListenerFuncs{}
	}
	stdout := logging.LineSink(log, "stdout")
	stderr := logging.LineSink(log, "stderr")
	debug := logging.DebugSink(log)
	return runner.ListenerFuncs{
		OnStdout: next.StdoutChunk,
		OnStderr: next.StderrChunk,
		OnStdoutLine: func(line string) error {
			_ = stdout(line)
			return next.StdoutLine(line)
		},
		OnStderrLine: func(line string) error {
			_ = stderr(line)
			return next.StderrLine(line)
		},
		OnDebug: func(msg string) {
			debug(msg)
			next.Debug(msg)
		},
	}
}

// Exec runs a single ad-hoc command as a one-step run.
func (e *Engine) Exec(ctx context.Context, c runner.Command, opts runner.Options) (*report.RunResult, error) {
	if c.Program == "" {
		return nil, errors.New("program is required")
	}
	rr := newRun(report.Exec)
	name := c.Program
	e.group(name, func() {
		rec := e.execute(ctx, report.Exec, name, c, opts)
		e.annotate(&rec)
		rr.Steps = append(rr.Steps, rec)
	})
	e.finish(rr)
	return rr, nil
}

// annotate raises an error annotation for a failed step in Actions mode.
func (e *Engine) annotate(rec *report.StepRecord) {
	if e.Host == nil || rec.Status == report.StatusPass || rec.Status == report.StatusSkipped {
		return
	}
	msg := rec.Message
	if line := FirstLine(rec.Stderr); line != "" {
		msg += ": " + line
	}
	e.Host.Error(msg, actions.AnnotationProperties{Title: rec.Name})
}

func (e *Engine) group(name string, fn func()) {
	if e.Host == nil {
		fn()
		return
	}
	_ = e.Host.Group(name, func() error {
		fn()
		return nil
	})
}

// finish persists the run and writes the job summary.
func (e *Engine) finish(rr *report.RunResult) {
	if e.Store != nil {
		if err := e.Store.Save(rr); err != nil {
			e.Log.Warn().Err(err).Str(logging.FieldRunID, rr.ID).Msg("saving run result")
		}
	}
	if e.Host != nil {
		if err := WriteSummary(e.Host.Summary(), rr); err != nil {
			e.Log.Warn().Err(err).Msg("writing job summary")
		}
	}
}

// FirstLine returns the first non-empty line of s, trimmed.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// Command converts a resolved step into a runner command.
func Command(r *config.Resolved) runner.Command {
	return runner.Command{Program: r.Program, Args: r.Args}
}

// Options converts a resolved step into runner options.
func Options(r *config.Resolved) runner.Options {
	return runner.Options{
		Dir:              r.Dir,
		Env:              r.Env,
		Silent:           r.Silent,
		FailOnStdErr:     r.FailOnStdErr,
		IgnoreReturnCode: r.IgnoreReturnCode,
		DrainGrace:       r.DrainGrace,
		Input:            r.Input,
	}
}

func unknownSteps(cfg *config.Config, names []string) error {
	var missing []string
	for _, n := range names {
		if _, ok := cfg.Step(n); !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("unknown step(s): %s (configured: %s)",
			strings.Join(missing, ", "), strings.Join(cfg.StepNames(), ", "))
	}
	return nil
}
