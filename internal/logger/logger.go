// Package logger builds the process-wide slog logger.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ekisa-team/rfworker/internal/env"
)

// Options configures the logger.
type Options struct {
	Level      slog.Level
	LogToFile  bool
	LogFile    string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Output     io.Writer
}

// Option mutates Options.
type Option func(*Options)

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(o *Options) { o.Level = level }
}

// WithLogToFile enables writing a rotated copy of the log to disk.
func WithLogToFile(enabled bool) Option {
	return func(o *Options) { o.LogToFile = enabled }
}

// WithLogFile sets the rotated log file path.
func WithLogFile(path string) Option {
	return func(o *Options) { o.LogFile = path }
}

// WithOutput replaces stdout as the console destination.
func WithOutput(w io.Writer) Option {
	return func(o *Options) { o.Output = w }
}

// New creates a logger for the given environment. Development gets a colored
// tint handler, production gets JSON. When file logging is enabled the JSON
// stream is also written to a lumberjack-rotated file.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	o := Options{
		Level:      slog.LevelInfo,
		LogFile:    "logs/rfworker.log",
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 14,
		Output:     os.Stdout,
	}
	if environment.IsDevelopment() {
		o.Level = slog.LevelDebug
	}
	for _, opt := range opts {
		opt(&o)
	}

	var console slog.Handler
	if environment.IsDevelopment() {
		console = tint.NewHandler(o.Output, &tint.Options{
			Level:      o.Level,
			TimeFormat: time.Kitchen,
		})
	} else {
		console = slog.NewJSONHandler(o.Output, &slog.HandlerOptions{Level: o.Level})
	}

	if !o.LogToFile {
		return slog.New(console)
	}

	file := slog.NewJSONHandler(&lumberjack.Logger{
		Filename:   o.LogFile,
		MaxSize:    o.MaxSizeMB,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAgeDays,
		Compress:   true,
	}, &slog.HandlerOptions{Level: o.Level})

	return slog.New(fanout{console, file})
}

// fanout sends every record to all handlers.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
