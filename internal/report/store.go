// Package report provides structured persistence and retrieval of run
// results. Results are stored as typed structs and can be queried by step.
package report

import (
	"fmt"
	"strings"
)

// Kind identifies the type of a run.
type Kind string

const (
	// Exec is a single ad-hoc command.
	Exec Kind = "exec"
	// Run is a run of configured steps.
	Run Kind = "run"
)

// Step statuses.
const (
	StatusPass        = "pass"
	StatusFail        = "fail"
	StatusUnavailable = "unavailable"
	StatusError       = "error"
	StatusSkipped     = "skipped"
)

// Store persists and retrieves run results.
type Store interface {
	Save(result *RunResult) error
	Load(runID string) (*RunResult, error)
}

// RunResult holds the structured output of a run.
type RunResult struct {
	ID    string       `json:"id"`
	Kind  Kind         `json:"kind"`
	Steps []StepRecord `json:"steps"`
}

// StepRecord is the outcome of one command.
type StepRecord struct {
	Name        string   `json:"name"`
	Argv        []string `json:"argv"`
	Dir         string   `json:"dir,omitempty"`
	Status      string   `json:"status"`
	FailureKind string   `json:"failure_kind,omitempty"` // launch, stderr, exit, io, listener
	Message     string   `json:"message,omitempty"`
	ExitCode    int      `json:"exit_code"`
	Stdout      string   `json:"stdout,omitempty"`
	Stderr      string   `json:"stderr,omitempty"`
	Truncated   bool     `json:"truncated,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
}

// Expect returns an error if the run's Kind does not match want.
func (r *RunResult) Expect(want Kind) error {
	if r.Kind != want {
		return fmt.Errorf("run %s has kind %s, want %s", r.ID, r.Kind, want)
	}
	return nil
}

// Step returns the record of the named step.
func (r *RunResult) Step(name string) (*StepRecord, error) {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i], nil
		}
	}
	return nil, fmt.Errorf("run %s has no step %q", r.ID, name)
}

// Failed returns the first step that did not pass or get skipped, or nil.
func (r *RunResult) Failed() *StepRecord {
	for i := range r.Steps {
		switch r.Steps[i].Status {
		case StatusPass, StatusSkipped:
			continue
		}
		return &r.Steps[i]
	}
	return nil
}

// Passed reports whether no step failed.
func (r *RunResult) Passed() bool {
	return r.Failed() == nil
}

// Stream returns the captured stdout or stderr of the step.
func (s *StepRecord) Stream(name string) (string, error) {
	switch name {
	case "", "stdout":
		return s.Stdout, nil
	case "stderr":
		return s.Stderr, nil
	}
	return "", fmt.Errorf("unknown stream %q (want stdout or stderr)", name)
}

// Tail returns the last n lines of text. n <= 0 returns text unchanged.
func Tail(text string, n int) string {
	if n <= 0 {
		return text
	}
	trimmed := strings.TrimSuffix(text, "\n")
	lines := strings.Split(trimmed, "\n")
	if len(lines) <= n {
		return text
	}
	out := strings.Join(lines[len(lines)-n:], "\n")
	if len(trimmed) != len(text) {
		out += "\n"
	}
	return out
}

// Match is a line found by Grep. Line numbers start at 1.
type Match struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Grep returns the lines of text containing substr.
func Grep(text, substr string) []Match {
	var out []Match
	for i, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		if strings.Contains(line, substr) {
			out = append(out, Match{Line: i + 1, Text: line})
		}
	}
	return out
}
