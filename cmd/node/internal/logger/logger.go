package logger

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"sync"
)

// Options configures a logger. The zero value logs warnings and errors to
// stderr without colour.
type Options struct {
	// Verbose lowers the level to Info.
	Verbose bool
	// Debug lowers the level to Debug and adds source locations.
	Debug bool
	// Color colourises level names with ANSI escapes.
	Color bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Level returns the minimum level implied by the options.
func (o Options) Level() slog.Level {
	switch {
	case o.Debug:
		return slog.LevelDebug
	case o.Verbose:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

var (
	defaultLogger *slog.Logger
	mu            sync.RWMutex
)

// New builds a text logger from opts.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := opts.Level()
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}
	if opts.Color {
		return slog.New(newConsoleHandler(out, level))
	}
	return slog.New(slog.NewTextHandler(out, handlerOpts))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Init builds the process logger from opts and installs it as the package
// and slog default.
func Init(opts Options) *slog.Logger {
	l := New(opts)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l)
	return l
}

// Default returns the logger installed by Init, or slog's default.
func Default() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if defaultLogger == nil {
		return slog.Default()
	}
	return defaultLogger
}

// Info logs at Info level.
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs at Warn level.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs at Error level.
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// Fatal logs at Error level and then exits.
func Fatal(msg string, args ...any) {
	Default().Error(msg, args...)
	os.Exit(1)
}

// With returns a new logger with the given attributes.
func With(args ...any) *slog.Logger {
	return Default().With(args...)
}

type contextKey struct{}

// NewContext returns ctx carrying l.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// Lookup returns the logger carried by ctx, if any.
func Lookup(ctx context.Context) (*slog.Logger, bool) {
	l, ok := ctx.Value(contextKey{}).(*slog.Logger)
	return l, ok
}

// FromContext returns the logger carried by ctx, falling back to Default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := Lookup(ctx); ok {
		return l
	}
	return Default()
}

// NewConnectionID returns a random identifier used to correlate the records
// of one connection.
func NewConnectionID() uint32 {
	return rand.Uint32()
}
