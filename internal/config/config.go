// Package config loads and validates the optional .steprun YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up at the repository root.
const FileName = ".steprun"

// Default values for runner configuration.
const (
	DefaultTimeout    = 5 * time.Minute
	DefaultDrainGrace = 10 * time.Second
)

// Config holds the parsed .steprun configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version       int       `yaml:"version"`
	RawTimeout    string    `yaml:"timeout" validate:"omitempty,duration"`     // e.g. "5m", "30s"
	RawDrainGrace string    `yaml:"drain_grace" validate:"omitempty,duration"` // e.g. "10s"
	Log           LogConfig `yaml:"log"`
	Defaults      Defaults  `yaml:"defaults"`
	Steps         []Step    `yaml:"steps" validate:"unique=Name,dive"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
	File   string `yaml:"file"` // rotated log file; empty logs to stderr
}

// Defaults apply to every step unless the step overrides them.
type Defaults struct {
	Env              map[string]string `yaml:"env"`
	Silent           bool              `yaml:"silent"`
	FailOnStdErr     bool              `yaml:"fail_on_stderr"`
	IgnoreReturnCode bool              `yaml:"ignore_return_code"`
}

// Step is one named command.
type Step struct {
	Name             string            `yaml:"name" validate:"required"`
	Run              []string          `yaml:"run" validate:"required,min=1"` // argv, no shell
	Dir              string            `yaml:"dir"`                           // relative to the repo root
	Env              map[string]string `yaml:"env"`
	EnvFile          string            `yaml:"env_file"`
	Input            string            `yaml:"input"`
	Silent           *bool             `yaml:"silent"`
	FailOnStdErr     *bool             `yaml:"fail_on_stderr"`
	IgnoreReturnCode *bool             `yaml:"ignore_return_code"`
	RawDrainGrace    string            `yaml:"drain_grace" validate:"omitempty,duration"`
}

// Timeout returns the configured timeout or the default.
func (c *Config) Timeout() time.Duration {
	return parseDuration(c.RawTimeout, DefaultTimeout)
}

// DrainGrace returns the configured drain grace or the default.
func (c *Config) DrainGrace() time.Duration {
	return parseDuration(c.RawDrainGrace, DefaultDrainGrace)
}

func parseDuration(raw string, def time.Duration) time.Duration {
	if raw != "" {
		d, err := time.ParseDuration(raw)
		if err == nil && d > 0 {
			return d
		}
	}
	return def
}

// Step returns the step with the given name.
func (c *Config) Step(name string) (*Step, bool) {
	for i := range c.Steps {
		if c.Steps[i].Name == name {
			return &c.Steps[i], true
		}
	}
	return nil, false
}

// StepNames returns the configured step names in order.
func (c *Config) StepNames() []string {
	names := make([]string, len(c.Steps))
	for i, s := range c.Steps {
		names[i] = s.Name
	}
	return names
}

// Resolved is a step with defaults applied and its env file read.
type Resolved struct {
	Name             string
	Program          string
	Args             []string
	Dir              string
	Env              map[string]string
	Input            []byte
	Silent           bool
	FailOnStdErr     bool
	IgnoreReturnCode bool
	DrainGrace       time.Duration
}

// Resolve applies the defaults to s. Env precedence, lowest first:
// env_file, defaults.env, step env. The env file path is relative to root.
func (c *Config) Resolve(s *Step, root string) (*Resolved, error) {
	if len(s.Run) == 0 {
		return nil, fmt.Errorf("step %q: run is empty", s.Name)
	}

	env := make(map[string]string)
	if s.EnvFile != "" {
		path := s.EnvFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		fileEnv, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("step %q: reading env file: %w", s.Name, err)
		}
		for k, v := range fileEnv {
			env[k] = v
		}
	}
	for k, v := range c.Defaults.Env {
		env[k] = v
	}
	for k, v := range s.Env {
		env[k] = v
	}

	r := &Resolved{
		Name:             s.Name,
		Program:          s.Run[0],
		Args:             s.Run[1:],
		Dir:              s.Dir,
		Env:              env,
		Silent:           pick(s.Silent, c.Defaults.Silent),
		FailOnStdErr:     pick(s.FailOnStdErr, c.Defaults.FailOnStdErr),
		IgnoreReturnCode: pick(s.IgnoreReturnCode, c.Defaults.IgnoreReturnCode),
		DrainGrace:       parseDuration(s.RawDrainGrace, c.DrainGrace()),
	}
	if s.Input != "" {
		r.Input = []byte(s.Input)
	}
	return r, nil
}

func pick(override *bool, def bool) bool {
	if override != nil {
		return *override
	}
	return def
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			d, err := time.ParseDuration(fl.Field().String())
			return err == nil && d > 0
		})
	})
	return validate
}

// Validate checks the configuration against its field rules.
func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldPath(fe)+": "+describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// fieldPath strips the root struct name: "Config.steps[0].name" becomes
// "steps[0].name".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " element(s)"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "unique":
		return "step names must be unique"
	case "duration":
		return fmt.Sprintf("%q is not a positive duration", fe.Value())
	default:
		return "is invalid"
	}
}

// LoadResult holds the parsed config and the discovered repository root.
type LoadResult struct {
	Config   *Config
	RepoRoot string // directory containing go.mod or .git; falls back to workspace
}

// Load reads the .steprun file from the repository root.
// The repository root is discovered by walking upward from workspace
// looking for go.mod or .git. If no .steprun file exists, a default Config
// is returned.
func Load(workspace string) (*LoadResult, error) {
	root, err := findRepoRoot(workspace)
	if err != nil {
		// No marker found; use workspace as root.
		root = workspace
	}

	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LoadResult{Config: &Config{}, RepoRoot: root}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Config: cfg, RepoRoot: root}, nil
}

// Parse decodes and validates a .steprun document.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return cfg, nil
}

// findRepoRoot walks upward from dir looking for a directory containing
// go.mod or .git.
func findRepoRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		for _, marker := range []string{"go.mod", ".git"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("repository root not found")
		}
		dir = parent
	}
}
