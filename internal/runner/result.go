package runner

import "time"

// Result holds the output of a finished command execution.
type Result struct {
	RunID     string        // unique identifier for this run
	ExitCode  int           // process exit code; -1 if killed by a signal
	Stdout    string        // everything read from stdout
	Stderr    string        // everything read from stderr
	Truncated bool          // true if the streams were cut off after the drain grace
	Duration  time.Duration // from start until finalization
}
