// Package logging wires the module's components to log/slog. Library code
// never configures the global logger itself; Init is for the CLI front end,
// while For hands each component a tagged logger that follows whatever
// default the embedding program installs.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

var level = new(slog.LevelVar)

// Init configures the global slog logger. Intended for cmd/ entry points;
// embedding programs configure slog themselves.
// levelStr: "debug", "info", "warn", "error" (default "info").
// format: "text" or "json" (default "text").
func Init(levelStr, format string) {
	level.Set(parseLevel(levelStr))
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// For returns a logger tagged with a component name ("dict", "shard", ...).
// It delegates to slog.Default() at call time, so package-level loggers pick
// up runtime changes to the default, including test capture.
func For(component string) *slog.Logger {
	return slog.New(&dynamicHandler{component: component})
}

// SetLevel changes the log level at runtime.
func SetLevel(l slog.Level) {
	level.Set(l)
}

func parseLevel(s string) slog.Level {
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

// dynamicHandler forwards each record to slog.Default().Handler() with a
// "component" attribute attached.
type dynamicHandler struct {
	component string
}

func (h *dynamicHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return slog.Default().Handler().Enabled(ctx, l)
}

func (h *dynamicHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.String("component", h.component))
	return slog.Default().Handler().Handle(ctx, r)
}

func (h *dynamicHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }

func (h *dynamicHandler) WithGroup(name string) slog.Handler { return h }
