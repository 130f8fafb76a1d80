package actions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// fileCommand appends message to the file named by $GITHUB_<command>.
func (h *Host) fileCommand(command, message string) error {
	name := "GITHUB_" + command
	path := h.getenv(name)
	if path == "" {
		return fmt.Errorf("unable to find environment variable for file command %s", command)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("missing file at path: %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("opening %s file: %w", name, err)
	}
	if _, err := f.WriteString(message + eol); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s file: %w", name, err)
	}
	return f.Close()
}

// keyValueMessage frames a value with a random heredoc delimiter, so that
// multi-line values survive.
func keyValueMessage(key, value string) (string, error) {
	delimiter := "ghadelimiter_" + uuid.New().String()
	if strings.Contains(key, delimiter) {
		return "", fmt.Errorf("unexpected input: name should not contain the delimiter %q", delimiter)
	}
	if strings.Contains(value, delimiter) {
		return "", fmt.Errorf("unexpected input: value should not contain the delimiter %q", delimiter)
	}
	return key + "<<" + delimiter + eol + value + eol + delimiter, nil
}

func (h *Host) keyValueCommand(command, key, value string) error {
	msg, err := keyValueMessage(key, value)
	if err != nil {
		return err
	}
	return h.fileCommand(command, msg)
}

// ExportVariable sets name for this process and for later steps of the job.
func (h *Host) ExportVariable(name string, value any) error {
	v := commandValue(value)
	if err := h.setenv(name, v); err != nil {
		return fmt.Errorf("setting %s: %w", name, err)
	}
	if h.getenv("GITHUB_ENV") != "" {
		return h.keyValueCommand("ENV", name, v)
	}
	h.issue("set-env", []property{{"name", name}}, v)
	return nil
}

// AddPath prepends dir to PATH for this process and later steps.
func (h *Host) AddPath(dir string) error {
	if h.getenv("GITHUB_PATH") != "" {
		if err := h.fileCommand("PATH", dir); err != nil {
			return err
		}
	} else {
		h.issue("add-path", nil, dir)
	}
	path := dir
	if cur := h.getenv("PATH"); cur != "" {
		path += string(filepath.ListSeparator) + cur
	}
	return h.setenv("PATH", path)
}

// SetOutput sets a step output.
func (h *Host) SetOutput(name string, value any) error {
	v := commandValue(value)
	if h.getenv("GITHUB_OUTPUT") != "" {
		return h.keyValueCommand("OUTPUT", name, v)
	}
	h.write(eol)
	h.issue("set-output", []property{{"name", name}}, v)
	return nil
}

// SaveState stores a value for this action's post step.
func (h *Host) SaveState(name string, value any) error {
	v := commandValue(value)
	if h.getenv("GITHUB_STATE") != "" {
		return h.keyValueCommand("STATE", name, v)
	}
	h.issue("save-state", []property{{"name", name}}, v)
	return nil
}

// GetState returns a value saved by this action's main step.
func (h *Host) GetState(name string) string {
	return h.getenv("STATE_" + name)
}

// InputOptions tunes GetInput. The zero value reads an optional input and
// trims surrounding whitespace.
type InputOptions struct {
	Required       bool
	KeepWhitespace bool
}

// ErrInputRequired is returned for a required input that is empty.
var ErrInputRequired = errors.New("input required and not supplied")

// ErrNotBoolean is returned by GetBooleanInput for values outside the YAML
// 1.2 core schema booleans.
var ErrNotBoolean = errors.New(`input does not meet YAML 1.2 "Core Schema" specification`)

func inputKey(name string) string {
	return "INPUT_" + strings.ToUpper(strings.ReplaceAll(name, " ", "_"))
}

// GetInput returns the value of an action input.
func (h *Host) GetInput(name string, opts InputOptions) (string, error) {
	v := h.getenv(inputKey(name))
	if opts.Required && v == "" {
		return "", fmt.Errorf("%w: %s", ErrInputRequired, name)
	}
	if opts.KeepWhitespace {
		return v, nil
	}
	return strings.TrimSpace(v), nil
}

// GetMultilineInput returns the non-empty lines of an input.
func (h *Host) GetMultilineInput(name string, opts InputOptions) ([]string, error) {
	v, err := h.GetInput(name, opts)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(v, "\n") {
		if line == "" {
			continue
		}
		if !opts.KeepWhitespace {
			line = strings.TrimSpace(line)
		}
		out = append(out, line)
	}
	return out, nil
}

// GetBooleanInput accepts true, True, TRUE, false, False and FALSE.
func (h *Host) GetBooleanInput(name string, opts InputOptions) (bool, error) {
	v, err := h.GetInput(name, opts)
	if err != nil {
		return false, err
	}
	switch v {
	case "true", "True", "TRUE":
		return true, nil
	case "false", "False", "FALSE":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s\nSupport boolean input list: `true | True | TRUE | false | False | FALSE`", ErrNotBoolean, name)
}

// ToPosixPath converts backslashes to forward slashes.
func ToPosixPath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// ToWin32Path converts forward slashes to backslashes.
func ToWin32Path(p string) string {
	return strings.ReplaceAll(p, "/", `\`)
}

// ToPlatformPath converts both separators to the one of the current OS.
func ToPlatformPath(p string) string {
	sep := string(filepath.Separator)
	return strings.NewReplacer("/", sep, `\`, sep).Replace(p)
}
