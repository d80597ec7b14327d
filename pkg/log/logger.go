package log

import (
	"fmt"
	"io"
	stdlog "log"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name (case-insensitive).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Field is a single structured key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// F builds a Field from an arbitrary value.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Str builds a string Field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int builds an int Field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Dur builds a duration Field rendered as a string.
func Dur(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }

// Err builds the conventional "error" Field.
func Err(err error) Field { return Field{Key: "error", Value: err} }

// Component tags a logger with the owning component name.
func Component(name string) Field { return Field{Key: "component", Value: name} }

// Logger is the logging interface used across expedite.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger carrying the extra fields.
	With(fields ...Field) Logger
}

// Config selects level and output format, typically from env.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // text|json
}

// Option configures a logger built by New.
type Option func(*options)

type options struct {
	level  Level
	format string
	out    io.Writer
}

// WithLevel sets the minimum level.
func WithLevel(l Level) Option { return func(o *options) { o.level = l } }

// WithJSON selects the JSON formatter.
func WithJSON() Option { return func(o *options) { o.format = "json" } }

// WithOutput sets the destination writer (default stderr).
func WithOutput(w io.Writer) Option { return func(o *options) { o.out = w } }

type slogLogger struct {
	sl *slog.Logger
}

// New builds a Logger backed by slog.
func New(opts ...Option) Logger {
	o := options{level: InfoLevel, format: "text", out: os.Stderr}
	for _, fn := range opts {
		fn(&o)
	}
	ho := &slog.HandlerOptions{Level: toSlogLevel(o.level)}
	var h slog.Handler
	if o.format == "json" {
		h = slog.NewJSONHandler(o.out, ho)
	} else {
		h = slog.NewTextHandler(o.out, ho)
	}
	return &slogLogger{sl: slog.New(h)}
}

// FromConfig builds a Logger from Config, failing on an unknown level.
func FromConfig(cfg Config) (Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := []Option{WithLevel(lvl)}
	if strings.EqualFold(cfg.Format, "json") {
		opts = append(opts, WithJSON())
	}
	return New(opts...), nil
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() Logger {
	return &slogLogger{sl: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (l *slogLogger) Debug(msg string, fields ...Field) { l.sl.Debug(msg, args(fields)...) }
func (l *slogLogger) Info(msg string, fields ...Field)  { l.sl.Info(msg, args(fields)...) }
func (l *slogLogger) Warn(msg string, fields ...Field)  { l.sl.Warn(msg, args(fields)...) }
func (l *slogLogger) Error(msg string, fields ...Field) { l.sl.Error(msg, args(fields)...) }

func (l *slogLogger) With(fields ...Field) Logger {
	return &slogLogger{sl: l.sl.With(args(fields)...)}
}

func args(fields []Field) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		v := f.Value
		if err, ok := v.(error); ok && err != nil {
			v = err.Error()
		}
		out = append(out, f.Key, v)
	}
	return out
}

func toSlogLevel(l Level) slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RedirectStdLog points the stdlib default logger at lg so dependencies that
// log via package log (Pebble's event listener does) share the output stream.
func RedirectStdLog(lg Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdWriter{lg: lg})
}

type stdWriter struct{ lg Logger }

func (w stdWriter) Write(p []byte) (int, error) {
	w.lg.Info(strings.TrimRight(string(p), "\n"), Str("source", "stdlog"))
	return len(p), nil
}
