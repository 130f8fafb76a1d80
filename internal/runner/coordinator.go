package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

type phase int

const (
	phaseRunning phase = iota
	phaseExitedWaitingDrain
	phaseFinalized
)

func (p phase) String() string {
	switch p {
	case phaseRunning:
		return "running"
	case phaseExitedWaitingDrain:
		return "exited"
	case phaseFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// coordinator joins process exit with the drain of both output streams.
// exited is called by the process waiter, drained by the pump group and
// finalize by whichever of drain or grace timer comes first.
type coordinator struct {
	mu        sync.Mutex
	phase     phase
	exitCode  int
	drained   bool
	truncated bool
}

func (c *coordinator) exited(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == phaseRunning {
		c.phase = phaseExitedWaitingDrain
		c.exitCode = code
	}
}

func (c *coordinator) streamsDrained() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drained = true
}

// finalize moves to phaseFinalized and reports whether the streams were cut
// off before reaching EOF. Later calls return the first answer.
func (c *coordinator) finalize() (truncated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != phaseFinalized {
		c.phase = phaseFinalized
		c.truncated = !c.drained
	}
	return c.truncated
}

func (c *coordinator) state() phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// awaitDrain waits for the pumps after the process has exited. It reports
// whether the grace period ran out first, along with the pump group's
// error. On timeout the read ends are closed so the pumps return with what they
// already have.
func (c *coordinator) awaitDrain(p *process, drained <-chan error, grace time.Duration, debug func(string), program string) (bool, error) {
	select {
	case err := <-drained:
		c.finalize()
		return false, err
	default:
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-drained:
		c.finalize()
		return false, err
	case <-timer.C:
	}

	truncated := c.finalize()
	debug(fmt.Sprintf("output streams did not close within %s of %q exiting; a child process may have inherited them", grace, program))
	_ = p.stdout.Close()
	_ = p.stderr.Close()
	return truncated, <-drained
}

// exitStatus maps the result of cmd.Wait to an exit code. A kill through
// the context is reported by the caller, not here. Anything else that is not
// a plain non-zero exit is returned as an i/o failure.
func exitStatus(cmd *exec.Cmd, waitErr error) (int, error) {
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		return 0, nil
	case errors.As(waitErr, &exitErr):
		return exitErr.ExitCode(), nil
	case errors.Is(waitErr, context.Canceled), errors.Is(waitErr, context.DeadlineExceeded):
		return cmd.ProcessState.ExitCode(), nil
	}
	return -1, waitErr
}

// writeInput feeds the child's stdin and closes it. A child that exits, or
// closes stdin, without reading everything is not an error.
func writeInput(w *os.File, input []byte) error {
	_, err := w.Write(input)
	closeErr := w.Close()
	if err == nil && !errors.Is(closeErr, os.ErrClosed) {
		err = closeErr
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("writing stdin: %w", err)
	}
	return nil
}
