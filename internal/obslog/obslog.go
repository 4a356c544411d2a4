// Package obslog provides the structured logging wrapper shared by
// every pipeline stage, following the teacher's logrus-backed Logger
// interface: a process-wide default instance plus per-component child
// loggers acquired via WithComponent.
package obslog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logging contract used throughout SmartRecon.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger
	WithComponent(component string) Logger
}

// Fields is a map of structured key-value pairs attached to a log line.
type Fields map[string]interface{}

// Level is a logging verbosity level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Format is a log line rendering format.
type Format string

const (
	TextFormat Format = "text"
	JSONFormat Format = "json"
)

// Output is a log destination.
type Output string

const (
	StdoutOutput Output = "stdout"
	StderrOutput Output = "stderr"
)

// Config configures a Logger instance.
type Config struct {
	Level      Level
	Format     Format
	Output     Output
	CallerInfo bool
}

// DefaultConfig returns the default configuration: text, stderr, info.
func DefaultConfig() *Config {
	return &Config{Level: InfoLevel, Format: TextFormat, Output: StderrOutput}
}

// Validate checks that every field of the configuration is recognised.
func (c *Config) Validate() error {
	switch c.Level {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	switch c.Format {
	case TextFormat, JSONFormat:
	default:
		return fmt.Errorf("invalid log format: %s", c.Format)
	}
	switch c.Output {
	case StdoutOutput, StderrOutput:
	default:
		return fmt.Errorf("invalid log output: %s", c.Output)
	}
	return nil
}

type logrusLogger struct {
	logger *logrus.Logger
	entry  *logrus.Entry
}

// New builds a Logger from the given configuration. A nil config uses
// DefaultConfig.
func New(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger configuration: %w", err)
	}

	l := logrus.New()

	level, err := logrus.ParseLevel(string(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}
	l.SetLevel(level)
	l.SetOutput(writerFor(cfg.Output))
	l.SetFormatter(formatterFor(cfg))
	l.SetReportCaller(cfg.CallerInfo)

	return &logrusLogger{logger: l}, nil
}

func writerFor(o Output) io.Writer {
	if o == StdoutOutput {
		return os.Stdout
	}
	return os.Stderr
}

func formatterFor(cfg *Config) logrus.Formatter {
	prettyfier := func(f *runtime.Frame) (string, string) {
		return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
	}
	if cfg.Format == JSONFormat {
		return &logrus.JSONFormatter{
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: prettyfier,
		}
	}
	return &logrus.TextFormatter{
		FullTimestamp:    true,
		TimestampFormat:  "2006-01-02 15:04:05",
		CallerPrettyfier: prettyfier,
	}
}

func (l *logrusLogger) clone(e *logrus.Entry) Logger {
	return &logrusLogger{logger: l.logger, entry: e}
}

func (l *logrusLogger) base() logrus.FieldLogger {
	if l.entry != nil {
		return l.entry
	}
	return l.logger
}

func (l *logrusLogger) Debug(args ...interface{}) { l.base().Debug(args...) }
func (l *logrusLogger) Debugf(format string, args ...interface{}) {
	l.base().Debugf(format, args...)
}
func (l *logrusLogger) Info(args ...interface{}) { l.base().Info(args...) }
func (l *logrusLogger) Infof(format string, args ...interface{}) {
	l.base().Infof(format, args...)
}
func (l *logrusLogger) Warn(args ...interface{}) { l.base().Warn(args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{}) {
	l.base().Warnf(format, args...)
}
func (l *logrusLogger) Error(args ...interface{}) { l.base().Error(args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) {
	l.base().Errorf(format, args...)
}

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return l.clone(l.base().WithField(key, value).(*logrus.Entry))
}

func (l *logrusLogger) WithFields(fields Fields) Logger {
	return l.clone(l.base().WithFields(logrus.Fields(fields)).(*logrus.Entry))
}

func (l *logrusLogger) WithError(err error) Logger {
	return l.clone(l.base().WithError(err).(*logrus.Entry))
}

func (l *logrusLogger) WithComponent(component string) Logger {
	return l.WithField("component", component)
}

// global is the process-wide default Logger. Only the logging
// singleton is kept from the teacher's patterns — business
// configuration is never a module-level singleton in this module
// (see SPEC_FULL.md §10.3).
var global Logger

func init() {
	l, err := New(DefaultConfig())
	if err != nil {
		// Formatting/level constants above are fixed and always valid;
		// a failure here means the constants themselves are broken.
		panic(fmt.Sprintf("obslog: default configuration is invalid: %v", err))
	}
	global = l
}

// SetGlobal replaces the process-wide default logger, e.g. once the CLI
// has parsed the --verbose flag.
func SetGlobal(l Logger) { global = l }

// Global returns the process-wide default logger.
func Global() Logger { return global }

// WithComponent acquires a named child logger from the global default,
// mirroring the per-stage logger each pipeline component holds.
func WithComponent(component string) Logger { return global.WithComponent(component) }
