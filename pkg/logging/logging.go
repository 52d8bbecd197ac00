// Package logging wraps log/slog with the level parsing and third-party
// noise filtering this host uses everywhere else.
package logging

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const modulePackagePrefix = "github.com/a2ahost/server"

// ParseLevel converts a string log level to slog.Level. Unknown strings
// default to Warn rather than erroring, since the caller is usually a
// config file a user hand-edited.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// filteringHandler wraps a slog.Handler and suppresses log lines emitted
// from outside this module's own packages, unless the configured level is
// Debug. This keeps a chatty dependency (etcd client, otel SDK) from
// drowning out the host's own logs at Info/Warn.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug {
		return h.handler.Handle(ctx, record)
	}
	if h.isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	fullName := fn.Name()
	file, _ := fn.FileLine(pc)
	return strings.Contains(fullName, modulePackagePrefix) || strings.Contains(file, "/a2ahost/")
}

// New builds a slog.Logger writing JSON to w (os.Stderr when w is nil) at
// the given level, filtering third-party noise below Debug.
func New(levelStr string, w *os.File) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := ParseLevel(levelStr)
	base := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(&filteringHandler{handler: base, minLevel: level})
}
