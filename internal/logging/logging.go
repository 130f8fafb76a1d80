// Package logging builds the zerolog logger shared by the CLI, the step
// runner and the MCP server.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field keys used across packages.
const (
	FieldComponent = "component"
	FieldRunID     = "run_id"
	FieldStep      = "step"
	FieldStream    = "stream"
	FieldExitCode  = "exit_code"
	FieldDuration  = "duration_ms"
)

// Config controls the logger. Zero values select info level, console
// output and stderr.
type Config struct {
	Level   string // trace, debug, info, warn, error
	Format  string // console or json
	File    string // rotated log file; empty writes to Out
	NoColor bool

	// Rotation settings, used only with File.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Out replaces stderr when File is empty.
	Out io.Writer
}

func (c *Config) applyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 50
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 7
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 30
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a logger from cfg. The returned Closer releases the log file,
// if any. An unknown level falls back to info.
func New(cfg Config) (zerolog.Logger, io.Closer) {
	cfg.applyDefaults()

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var (
		out    io.Writer = cfg.Out
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out, closer = lj, lj
	}
	if out == nil {
		out = os.Stderr
	}

	// Rotated files are read by tools, so they stay JSON.
	if strings.EqualFold(cfg.Format, "console") && cfg.File == "" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
			NoColor:    cfg.NoColor,
		}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), closer
}

// DebugSink adapts l into a runner debug listener.
func DebugSink(l zerolog.Logger) func(string) {
	return func(msg string) {
		l.Debug().Msg(msg)
	}
}

// LineSink logs each streamed line at debug level, tagged with its stream.
func LineSink(l zerolog.Logger, stream string) func(string) error {
	sl := l.With().Str(FieldStream, stream).Logger()
	return func(line string) error {
		sl.Debug().Msg(line)
		return nil
	}
}
