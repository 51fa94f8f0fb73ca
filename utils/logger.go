package utils

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Logger provides leveled, printf-style logging throughout the application.
type Logger struct {
	slog *slog.Logger
}

// LoggerOptions configures NewLoggerWith.
type LoggerOptions struct {
	Writer  io.Writer
	Level   string
	NoColor bool
}

// NewLogger creates a Logger writing coloured text to stdout at info level.
func NewLogger() *Logger {
	return NewLoggerWith(LoggerOptions{})
}

// NewLoggerWith creates a Logger from explicit options.
func NewLoggerWith(opts LoggerOptions) *Logger {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	handler := tint.NewHandler(opts.Writer, &tint.Options{
		Level:      ParseLevel(opts.Level),
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    opts.NoColor,
	})
	return &Logger{slog: slog.New(handler)}
}

// NewNopLogger discards everything. Used by tests.
func NewNopLogger() *Logger {
	return NewLoggerWith(LoggerOptions{Writer: io.Discard, Level: "error", NoColor: true})
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a Logger that attaches key/value attributes to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

func (l *Logger) log(level slog.Level, format string, args ...any) {
	ctx := context.Background()
	if !l.slog.Enabled(ctx, level) {
		return
	}
	l.slog.Log(ctx, level, fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...any) {
	l.log(slog.LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(slog.LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(slog.LevelError, format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.log(slog.LevelDebug, format, args...)
}
