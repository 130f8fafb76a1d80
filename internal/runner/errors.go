package runner

import (
	"errors"
	"fmt"
)

// Kind classifies an execution failure.
type Kind int

const (
	// KindLaunch means the process could not be started.
	KindLaunch Kind = iota + 1
	// KindStdErrProduced means FailOnStdErr was set and stderr had output.
	KindStdErrProduced
	// KindNonZeroExit means the exit code was non-zero and not ignored.
	KindNonZeroExit
	// KindIO means reading or writing one of the pipes failed.
	KindIO
	// KindListener means a listener callback returned an error.
	KindListener
)

func (k Kind) String() string {
	switch k {
	case KindLaunch:
		return "launch"
	case KindStdErrProduced:
		return "stderr"
	case KindNonZeroExit:
		return "exit"
	case KindIO:
		return "io"
	case KindListener:
		return "listener"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. Every *ExecError matches the one for its Kind.
var (
	ErrLaunch         = errors.New("process launch failed")
	ErrStdErrProduced = errors.New("process wrote to stderr")
	ErrNonZeroExit    = errors.New("process exited with non-zero code")
	ErrIO             = errors.New("process i/o failed")
	ErrListener       = errors.New("output listener failed")
)

func (k Kind) sentinel() error {
	switch k {
	case KindLaunch:
		return ErrLaunch
	case KindStdErrProduced:
		return ErrStdErrProduced
	case KindNonZeroExit:
		return ErrNonZeroExit
	case KindIO:
		return ErrIO
	case KindListener:
		return ErrListener
	default:
		return nil
	}
}

// ExecError describes a failed execution.
type ExecError struct {
	Kind     Kind
	Program  string
	ExitCode int    // set for KindNonZeroExit and KindStdErrProduced
	Stderr   string // captured stderr for policy failures
	Err      error  // underlying cause, if any
}

func (e *ExecError) Error() string {
	switch e.Kind {
	case KindLaunch:
		return fmt.Sprintf("starting %s: %v", e.Program, e.Err)
	case KindStdErrProduced:
		return fmt.Sprintf("process %q failed because one or more lines were written to stderr", e.Program)
	case KindNonZeroExit:
		return fmt.Sprintf("process %q failed with exit code %d", e.Program, e.ExitCode)
	case KindListener:
		return fmt.Sprintf("listener for %s: %v", e.Program, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Program, e.Err)
	}
}

func (e *ExecError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's Kind.
func (e *ExecError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the Kind of the first *ExecError in err's chain, or 0.
func KindOf(err error) Kind {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.Kind
	}
	return 0
}
