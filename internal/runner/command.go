package runner

import (
	"io"
	"os"
	"strings"
	"time"
)

// DefaultDrainGrace is how long the runner waits for stdout and stderr to
// reach EOF after the process has exited.
const DefaultDrainGrace = 10 * time.Second

// Command names the program to run and its argument vector. Arguments are
// handed to the OS as-is; there is no shell interpretation.
type Command struct {
	Program string
	Args    []string
}

// String renders the command line the way it is echoed before execution.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Program
	}
	return c.Program + " " + strings.Join(c.Args, " ")
}

// Options configures a single execution. The zero value is valid: inherit
// the environment, run in the current directory, echo output, fail on a
// non-zero exit code and wait up to DefaultDrainGrace for the streams.
type Options struct {
	// Dir is the working directory. Empty means the caller's directory, or
	// the runner's workspace when one is set.
	Dir string
	// Env is overlaid on the inherited environment.
	Env map[string]string
	// Silent suppresses echoing the command line and its output to
	// Stdout/Stderr. Listeners are still called.
	Silent bool
	// FailOnStdErr fails the execution if anything was written to stderr.
	FailOnStdErr bool
	// IgnoreReturnCode disables the non-zero exit code failure.
	IgnoreReturnCode bool
	// DrainGrace bounds the wait for stream EOF after the process exits.
	// Zero selects DefaultDrainGrace; negative finalizes right at exit.
	DrainGrace time.Duration
	// Input, when non-nil, is written to the child's stdin, which is then
	// closed.
	Input []byte
	// Listeners receives chunk, line and debug events. May be nil.
	Listeners Listeners
	// Stdout and Stderr receive the echo when Silent is false.
	// They default to os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
}

func (o *Options) drainGrace() time.Duration {
	switch {
	case o.DrainGrace < 0:
		return 0
	case o.DrainGrace == 0:
		return DefaultDrainGrace
	default:
		return o.DrainGrace
	}
}

func (o *Options) listeners() Listeners {
	if o.Listeners == nil {
		return ListenerFuncs{}
	}
	return o.Listeners
}

func (o *Options) echoWriters() (stdout, stderr io.Writer) {
	if o.Silent {
		return nil, nil
	}
	stdout, stderr = o.Stdout, o.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}

// Listeners observes an execution. Methods are called synchronously from the
// goroutine pumping the corresponding stream, in arrival order. There is no
// ordering between stdout and stderr events. A chunk belongs to the
// listener and may be retained.
//
// Debug may be called from any of the execution's goroutines.
//
// A chunk or line method that returns an error stops all further callbacks
// for that stream; the stream is still drained into the result and the
// error is reported once the execution finishes.
type Listeners interface {
	StdoutChunk(chunk []byte) error
	StderrChunk(chunk []byte) error
	StdoutLine(line string) error
	StderrLine(line string) error
	Debug(msg string)
}

// ListenerFuncs adapts plain functions to Listeners. Nil fields are no-ops.
type ListenerFuncs struct {
	OnStdout     func(chunk []byte) error
	OnStderr     func(chunk []byte) error
	OnStdoutLine func(line string) error
	OnStderrLine func(line string) error
	OnDebug      func(msg string)
}

var _ Listeners = ListenerFuncs{}

func (l ListenerFuncs) StdoutChunk(chunk []byte) error {
	if l.OnStdout == nil {
		return nil
	}
	return l.OnStdout(chunk)
}

func (l ListenerFuncs) StderrChunk(chunk []byte) error {
	if l.OnStderr == nil {
		return nil
	}
	return l.OnStderr(chunk)
}

func (l ListenerFuncs) StdoutLine(line string) error {
	if l.OnStdoutLine == nil {
		return nil
	}
	return l.OnStdoutLine(line)
}

func (l ListenerFuncs) StderrLine(line string) error {
	if l.OnStderrLine == nil {
		return nil
	}
	return l.OnStderrLine(line)
}

func (l ListenerFuncs) Debug(msg string) {
	if l.OnDebug != nil {
		l.OnDebug(msg)
	}
}
