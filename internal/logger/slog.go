package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// slogLogger adapts log/slog to the Logger interface.
type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger returns a JSON logger writing to w. Timestamps are rendered
// in tz when non-nil, UTC otherwise.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = os.Stderr
	}
	if tz == nil {
		tz = time.UTC
	}
	opts := &slog.HandlerOptions{
		Level: toSlogLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				a.Value = slog.TimeValue(a.Value.Time().In(tz))
			}
			return a
		},
	}
	return &slogLogger{l: slog.New(slog.NewJSONHandler(w, opts))}
}

func toSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func toAttrs(fields []Field) []any {
	attrs := make([]any, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	return attrs
}

func (s *slogLogger) log(level slog.Level, msg string, fields []Field) {
	s.l.Log(context.Background(), level, msg, toAttrs(fields)...)
}

func (s *slogLogger) Debug(msg string, fields ...Field) { s.log(slog.LevelDebug, msg, fields) }
func (s *slogLogger) Info(msg string, fields ...Field)  { s.log(slog.LevelInfo, msg, fields) }
func (s *slogLogger) Warn(msg string, fields ...Field)  { s.log(slog.LevelWarn, msg, fields) }
func (s *slogLogger) Error(msg string, fields ...Field) { s.log(slog.LevelError, msg, fields) }

func (s *slogLogger) With(fields ...Field) Logger {
	return &slogLogger{l: s.l.With(toAttrs(fields)...)}
}

func (s *slogLogger) Module(name string) Logger {
	return &slogLogger{l: s.l.With(slog.String("module", name))}
}

var (
	defaultLogger Logger
	defaultMu     sync.RWMutex
)

// SetDefault replaces the process-wide logger returned by Default.
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// Default returns the process-wide logger, creating an info-level stderr
// logger on first use.
func Default() Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewSlogLogger(os.Stderr, LogLevelInfo, nil)
	}
	return defaultLogger
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return NewSlogLogger(io.Discard, LogLevelError, nil)
}
