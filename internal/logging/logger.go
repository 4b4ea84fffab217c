// Package logging provides the structured logger used across shadowstream,
// a thin slog wrapper with context-first methods and component scoping.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a severity threshold. Its values line up with slog's.
type LogLevel slog.Level

const (
	LevelDebug = LogLevel(slog.LevelDebug)
	LevelInfo  = LogLevel(slog.LevelInfo)
	LevelWarn  = LogLevel(slog.LevelWarn)
	LevelError = LogLevel(slog.LevelError)
)

func (l LogLevel) String() string { return slog.Level(l).String() }

// ParseLevel maps a configuration string to a LogLevel. An empty string
// means info.
func ParseLevel(s string) (LogLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return LevelInfo, nil
	}
	if name == "warning" {
		name = "warn"
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil || strings.ContainsAny(name, "+-") {
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return LogLevel(lvl), nil
}

// Logger is the logging surface every package takes. Warn and Error carry
// the error as a separate argument so it always lands in the "error" key.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...any)
	Info(ctx context.Context, msg string, fields ...any)
	Warn(ctx context.Context, err error, msg string, fields ...any)
	Error(ctx context.Context, err error, msg string, fields ...any)

	With(fields ...any) Logger
	WithComponent(component string) Logger
}

// SlogLogger implements Logger on top of log/slog.
type SlogLogger struct {
	sl *slog.Logger
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // "json" or "text"
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultConfig logs text at info level to stderr.
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{Level: LevelInfo, Format: "text", Output: os.Stderr}
}

// NewLogger builds a logger from config. A nil config means DefaultConfig.
func NewLogger(config *LoggerConfig) *SlogLogger {
	if config == nil {
		config = DefaultConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: slog.Level(config.Level), AddSource: config.AddSource}
	var handler slog.Handler = slog.NewTextHandler(out, opts)
	if config.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	}

	sl := slog.New(handler)
	if config.Component != "" {
		sl = sl.With("component", config.Component)
	}
	return &SlogLogger{sl: sl}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &SlogLogger{sl: slog.New(slog.DiscardHandler)}
}

func (l *SlogLogger) Debug(ctx context.Context, msg string, fields ...any) {
	l.log(ctx, slog.LevelDebug, nil, msg, fields)
}

func (l *SlogLogger) Info(ctx context.Context, msg string, fields ...any) {
	l.log(ctx, slog.LevelInfo, nil, msg, fields)
}

func (l *SlogLogger) Warn(ctx context.Context, err error, msg string, fields ...any) {
	l.log(ctx, slog.LevelWarn, err, msg, fields)
}

func (l *SlogLogger) Error(ctx context.Context, err error, msg string, fields ...any) {
	l.log(ctx, slog.LevelError, err, msg, fields)
}

// With returns a child logger carrying the key/value pairs in fields.
func (l *SlogLogger) With(fields ...any) Logger {
	return &SlogLogger{sl: l.sl.With(fields...)}
}

// WithComponent scopes the logger to a named package or subsystem.
func (l *SlogLogger) WithComponent(component string) Logger {
	return l.With("component", component)
}

func (l *SlogLogger) log(ctx context.Context, level slog.Level, err error, msg string, fields []any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.sl.Enabled(ctx, level) {
		return
	}
	if err != nil {
		fields = append([]any{"error", err.Error()}, fields...)
	}
	l.sl.Log(ctx, level, msg, fields...)
}

// WithRequestID tags l with an HTTP request ID.
func WithRequestID(l Logger, requestID string) Logger {
	return l.With("request_id", requestID)
}

// PerfLogger times one operation and logs its duration when it ends.
type PerfLogger struct {
	Logger
	start time.Time
}

// StartOperation starts the clock on operation.
func StartOperation(l Logger, operation string) *PerfLogger {
	return &PerfLogger{Logger: l.With("operation", operation), start: time.Now()}
}

func (p *PerfLogger) elapsed() []any {
	d := time.Since(p.start)
	return []any{"duration_ms", d.Milliseconds(), "duration", d.String()}
}

// End logs a successful completion with any extra fields.
func (p *PerfLogger) End(ctx context.Context, fields ...any) {
	p.Info(ctx, "Operation completed", append(fields, p.elapsed()...)...)
}

// EndWithError logs a failed completion.
func (p *PerfLogger) EndWithError(ctx context.Context, err error) {
	p.Error(ctx, err, "Operation failed", p.elapsed()...)
}
