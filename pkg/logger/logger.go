package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Config contains logger configuration options
type Config struct {
	// Level is debug, info, warn or error. Unknown values mean info.
	Level string
	// JSON selects the JSON handler over the text handler
	JSON bool
	// Output defaults to os.Stderr
	Output io.Writer
	// AddSource adds file:line to each record
	AddSource bool
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{Level: "info", JSON: true, Output: os.Stderr}
}

// Logger wraps slog. Loggers derived with With* share one level, so
// SetLevel on any of them applies to all.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

var global atomic.Pointer[Logger]

// sensitive attribute keys are written as "[redacted]"
var sensitive = []string{"api_key", "token", "password", "secret"}

// ParseLevel maps a config string to a slog level.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// New creates a logger. The first logger created becomes the global one.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource, ReplaceAttr: redact}
	var handler slog.Handler = slog.NewTextHandler(cfg.Output, opts)
	if cfg.JSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	l := &Logger{Logger: slog.New(handler), level: level}
	global.CompareAndSwap(nil, l)
	return l
}

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, s := range sensitive {
		if strings.Contains(key, s) {
			return slog.String(a.Key, "[redacted]")
		}
	}
	return a
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(s string) {
	l.level.Set(ParseLevel(s))
}

// SetGlobal replaces the package-level logger.
func SetGlobal(l *Logger) {
	global.Store(l)
}

// GetGlobal returns the package-level logger, which may be nil before the
// first New.
func GetGlobal() *Logger {
	return global.Load()
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.With(args...), level: l.level}
}

// LogError logs err under the "error" key.
func (l *Logger) LogError(err error, msg string, args ...any) {
	if err == nil {
		l.Error(msg, args...)
		return
	}
	l.Error(msg, append([]any{"error", err.Error()}, args...)...)
}

// WithRequestID scopes the logger to one HTTP request.
func (l *Logger) WithRequestID(requestID string) *Logger {
	if requestID == "" {
		return l
	}
	return l.with("request_id", requestID)
}

// WithSessionID scopes the logger to a story session.
func (l *Logger) WithSessionID(sessionID string) *Logger {
	if sessionID == "" {
		return l
	}
	return l.with("session_id", sessionID)
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying l.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, then the global logger,
// then a discarding one.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*Logger); ok && l != nil {
			return l
		}
	}
	if l := global.Load(); l != nil {
		return l
	}
	return New(Config{Output: io.Discard})
}

// LogRequest writes the access log line for a finished request.
func (l *Logger) LogRequest(method, route string, status int, latency time.Duration, size int) {
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "request completed",
		"method", method,
		"route", route,
		"status", status,
		"latency_ms", latency.Milliseconds(),
		"bytes", size,
	)
}
