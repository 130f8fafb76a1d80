// Package actions speaks the GitHub Actions runner protocol: workflow
// commands on stdout, file commands, inputs, state and the job summary.
//
// Everything goes through a Host so that tests can capture output and
// substitute the environment.
package actions

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const eol = "\n"

// Host is the runner side of the protocol.
type Host struct {
	// Out receives workflow commands and log lines.
	Out io.Writer
	// Getenv and Setenv access the environment. They default to the
	// process environment.
	Getenv func(string) string
	Setenv func(key, value string) error

	mu       sync.Mutex
	exitCode int
	summary  *Summary
}

// NewHost returns a Host bound to os.Stdout and the process environment.
func NewHost() *Host {
	return &Host{Out: os.Stdout, Getenv: os.Getenv, Setenv: os.Setenv}
}

func (h *Host) getenv(key string) string {
	if h.Getenv == nil {
		return os.Getenv(key)
	}
	return h.Getenv(key)
}

func (h *Host) setenv(key, value string) error {
	if h.Setenv == nil {
		return os.Setenv(key, value)
	}
	return h.Setenv(key, value)
}

func (h *Host) write(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.Out
	if out == nil {
		out = os.Stdout
	}
	_, _ = io.WriteString(out, s)
}

// property is one key=value pair of a workflow command. Order is kept.
type property struct {
	key   string
	value string
}

// issue writes "::command k=v,k=v::message".
func (h *Host) issue(command string, props []property, message string) {
	var b strings.Builder
	b.WriteString("::")
	b.WriteString(command)
	for i, p := range props {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteByte(',')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(escapeProperty(p.value))
	}
	b.WriteString("::")
	b.WriteString(escapeData(message))
	b.WriteString(eol)
	h.write(b.String())
}

func escapeData(s string) string {
	return strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A").Replace(s)
}

func escapeProperty(s string) string {
	return strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A", ":", "%3A", ",", "%2C").Replace(s)
}

// commandValue renders a value for a command or file command. Strings pass
// through, nil is empty and anything else is JSON encoded.
func commandValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// AnnotationProperties locate an annotation. Zero values are omitted.
type AnnotationProperties struct {
	Title       string
	File        string
	StartLine   int
	EndLine     int // defaults to StartLine on the runner side
	StartColumn int // only valid when StartLine == EndLine
	EndColumn   int
}

func (p AnnotationProperties) properties() []property {
	var props []property
	add := func(k, v string) {
		if v != "" {
			props = append(props, property{k, v})
		}
	}
	num := func(n int) string {
		if n == 0 {
			return ""
		}
		return fmt.Sprint(n)
	}
	add("title", p.Title)
	add("file", p.File)
	add("line", num(p.StartLine))
	add("endLine", num(p.EndLine))
	add("col", num(p.StartColumn))
	add("endColumn", num(p.EndColumn))
	return props
}

// Debug writes a message shown only when step debug logging is on.
func (h *Host) Debug(message string) {
	h.issue("debug", nil, message)
}

// Info writes a plain log line.
func (h *Host) Info(message string) {
	h.write(message + eol)
}

// Notice adds a notice annotation.
func (h *Host) Notice(message any, props AnnotationProperties) {
	h.issue("notice", props.properties(), commandValue(message))
}

// Warning adds a warning annotation.
func (h *Host) Warning(message any, props AnnotationProperties) {
	h.issue("warning", props.properties(), commandValue(message))
}

// Error adds an error annotation.
func (h *Host) Error(message any, props AnnotationProperties) {
	h.issue("error", props.properties(), commandValue(message))
}

// StartGroup begins a foldable log group.
func (h *Host) StartGroup(name string) {
	h.issue("group", nil, name)
}

// EndGroup closes the current log group.
func (h *Host) EndGroup() {
	h.issue("endgroup", nil, "")
}

// Group runs fn inside a log group.
func (h *Host) Group(name string, fn func() error) error {
	h.StartGroup(name)
	defer h.EndGroup()
	return fn()
}

// SetSecret masks secret in all later log output.
func (h *Host) SetSecret(secret string) {
	h.issue("add-mask", nil, secret)
}

// SetCommandEcho turns echoing of workflow commands on or off.
func (h *Host) SetCommandEcho(enabled bool) {
	v := "off"
	if enabled {
		v = "on"
	}
	h.issue("echo", nil, v)
}

// IsDebug reports whether step debug logging is on.
func (h *Host) IsDebug() bool {
	return h.getenv("RUNNER_DEBUG") == "1"
}

// SetFailed records a failed outcome and logs message as an error.
func (h *Host) SetFailed(message any) {
	h.mu.Lock()
	h.exitCode = 1
	h.mu.Unlock()
	h.Error(message, AnnotationProperties{})
}

// ExitCode is 1 once SetFailed was called, 0 otherwise.
func (h *Host) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}
