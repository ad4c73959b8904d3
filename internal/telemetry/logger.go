package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// ParseLevel maps debug/info/warn/error to a slog level; anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

type LoggerOption func(*loggerOptions)

type loggerOptions struct {
	provider log.LoggerProvider
}

// WithLoggerProvider sends records to provider instead of the global one.
func WithLoggerProvider(provider log.LoggerProvider) LoggerOption {
	return func(o *loggerOptions) {
		o.provider = provider
	}
}

// NewLogger writes JSON records to w. With otelEnabled the records are also
// handed to the OTel logs bridge.
func NewLogger(w io.Writer, level slog.Level, otelEnabled bool, opts ...LoggerOption) *slog.Logger {
	jsonHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	if !otelEnabled {
		return slog.New(jsonHandler)
	}

	o := loggerOptions{provider: global.GetLoggerProvider()}
	for _, opt := range opts {
		opt(&o)
	}
	bridge := otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(o.provider))
	return slog.New(fanout{jsonHandler, leveled{bridge, level}})
}

// fanout passes every record to all handlers.
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
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
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

// leveled drops records below min before they reach h.
type leveled struct {
	h   slog.Handler
	min slog.Level
}

func (l leveled) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= l.min && l.h.Enabled(ctx, level)
}

func (l leveled) Handle(ctx context.Context, r slog.Record) error {
	return l.h.Handle(ctx, r)
}

func (l leveled) WithAttrs(attrs []slog.Attr) slog.Handler {
	return leveled{l.h.WithAttrs(attrs), l.min}
}

func (l leveled) WithGroup(name string) slog.Handler {
	return leveled{l.h.WithGroup(name), l.min}
}
