package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/wesleywu/kroute/internal/config"
)

type Logger struct {
	*slog.Logger
}

func New(cfg *config.Config) *Logger {
	return NewWithWriter(cfg, os.Stderr)
}

func NewWithWriter(cfg *config.Config, w io.Writer) *Logger {
	if cfg.SilentMode {
		w = io.Discard
	}

	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(cfg.LogLevel),
		AddSource: cfg.LogLevel == "debug",
	}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything, for tests and library callers
func Discard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
	}
}

func (l *Logger) WithFields(fields ...interface{}) *Logger {
	return &Logger{
		Logger: l.Logger.With(fields...),
	}
}

func (l *Logger) RouteOperation(action, route, device string, duration int64, success bool) {
	l.Info("Route operation completed",
		slog.String("action", action),
		slog.String("route", route),
		slog.String("device", device),
		slog.Int64("duration_us", duration),
		slog.Bool("success", success))
}

func (l *Logger) ValidationRejected(action, route, reason string) {
	l.Warn("Route rejected before kernel call",
		slog.String("action", action),
		slog.String("route", route),
		slog.String("reason", reason))
}

func (l *Logger) InterfaceLookup(query, device string, err error) {
	if err != nil {
		l.Error("Interface lookup failed",
			slog.String("query", query),
			slog.String("device", device),
			slog.String("error", err.Error()))
		return
	}
	l.Debug("Interface lookup succeeded",
		slog.String("query", query),
		slog.String("device", device))
}

func (l *Logger) ChannelOpened(fd int) {
	l.Debug("Control channel opened", slog.Int("fd", fd))
}

func (l *Logger) ChannelClosed(fd int) {
	l.Debug("Control channel closed", slog.Int("fd", fd))
}

func (l *Logger) BatchOperation(total, success, failed, skipped int, duration int64) {
	l.Info("Batch operation completed",
		slog.Int("total", total),
		slog.Int("success", success),
		slog.Int("failed", failed),
		slog.Int("skipped", skipped),
		slog.Int64("duration_ms", duration))
}

func (l *Logger) Performance(operation string, metrics map[string]interface{}) {
	args := []interface{}{
		"operation", operation,
	}

	for k, v := range metrics {
		args = append(args, k, v)
	}

	l.Debug("performance metrics", args...)
}
