// Package runner executes external programs, streaming their stdout and
// stderr to listeners while capturing the complete output, and applies a
// failure policy to the outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Runner executes commands. The zero value runs in the caller's directory
// with no timeout.
type Runner struct {
	// Workspace, when set, is the default directory and relative Dir
	// options resolve against it. Directories outside it are rejected.
	Workspace string
	// Timeout bounds each execution. Zero means no timeout.
	Timeout time.Duration
	// Env is overlaid on the inherited environment before Options.Env.
	Env map[string]string
}

// Output runs the command and returns its exit code and captured output.
//
// A launch failure returns a nil Result. Policy failures (non-zero exit,
// output on stderr) and stream failures return the Result together with an
// *ExecError. If ctx is done before the process exits, the process is
// killed and the error wraps ctx.Err().
func (r *Runner) Output(ctx context.Context, c Command, opts Options) (*Result, error) {
	return r.run(ctx, c, &opts)
}

// Exec runs the command and returns only its exit code. Listener and
// failure semantics are the same as for Output. A launch failure returns -1.
func (r *Runner) Exec(ctx context.Context, c Command, opts Options) (int, error) {
	res, err := r.run(ctx, c, &opts)
	if res == nil {
		return -1, err
	}
	return res.ExitCode, err
}

func (r *Runner) run(ctx context.Context, c Command, opts *Options) (*Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	l := opts.listeners()
	echoOut, echoErr := opts.echoWriters()

	l.Debug(fmt.Sprintf("exec program: %s", c.Program))
	l.Debug("arguments:")
	for _, a := range c.Args {
		l.Debug("   " + a)
	}
	if echoOut != nil {
		_, _ = io.WriteString(echoOut, "[command]"+c.String()+"\n")
	}

	start := time.Now()
	p, err := r.launch(ctx, c, opts)
	if err != nil {
		return nil, err
	}

	coord := &coordinator{}
	stdout := newStdoutStream(p.stdout, echoOut, l)
	stderr := newStderrStream(p.stderr, echoErr, l)

	var g errgroup.Group
	g.Go(stdout.pump)
	g.Go(stderr.pump)
	drained := make(chan error, 1)
	go func() {
		err := g.Wait()
		coord.streamsDrained()
		drained <- err
	}()

	inputDone := make(chan error, 1)
	if p.stdin != nil {
		go func() { inputDone <- writeInput(p.stdin, opts.Input) }()
	} else {
		inputDone <- nil
	}

	exitCode, waitErr := exitStatus(p.cmd, p.cmd.Wait())
	coord.exited(exitCode)
	l.Debug(fmt.Sprintf("exit code %d received from %s", exitCode, c.Program))

	truncated, pumpErr := coord.awaitDrain(p, drained, opts.drainGrace(), l.Debug, c.Program)
	_ = p.stdout.Close()
	_ = p.stderr.Close()
	if p.stdin != nil {
		// Unblocks a writer stuck on a descendant that holds stdin open.
		_ = p.stdin.Close()
	}
	inputErr := <-inputDone
	if !truncated {
		l.Debug(fmt.Sprintf("output streams have closed for %s", c.Program))
	}

	res := &Result{
		RunID:     uuid.New().String(),
		ExitCode:  exitCode,
		Stdout:    stdout.buf.String(),
		Stderr:    stderr.buf.String(),
		Truncated: truncated,
		Duration:  time.Since(start),
	}

	for _, err := range []error{waitErr, pumpErr, inputErr} {
		if err != nil {
			return res, &ExecError{Kind: KindIO, Program: c.Program, ExitCode: exitCode, Err: err}
		}
	}
	if err := listenerFailure(stdout, stderr); err != nil {
		return res, &ExecError{Kind: KindListener, Program: c.Program, ExitCode: exitCode, Err: err}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s killed by context: %w", c.Program, ctxErr)
	}

	return res, verdict(c.Program, res, stderr.seen(), opts)
}

func listenerFailure(streams ...*stream) error {
	var errs []error
	for _, s := range streams {
		if s.listenerErr != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, s.listenerErr))
		}
	}
	return errors.Join(errs...)
}
