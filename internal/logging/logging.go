// Package logging builds the engine's slog.Logger: colored text output on a
// terminal, rotated-file output via lumberjack, or both.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls logger construction. Zero value yields an info-level,
// colored, stderr-only logger.
type Config struct {
	Level      string // "debug", "info", "warn", "error"
	NoColor    bool
	FilePath   string // empty disables file rotation
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds the slog.Logger described by cfg.
func New(cfg Config) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		fileHandler := slog.NewTextHandler(rotator, &slog.HandlerOptions{Level: level})
		if cfg.NoColor {
			handler = multiHandler{fileHandler, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})}
		} else {
			handler = multiHandler{fileHandler, &ColoredTextHandler{inner: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})}}
		}
		return slog.New(handler), nil
	}

	if cfg.NoColor {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = &ColoredTextHandler{inner: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})}
	}
	return slog.New(handler), nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", s)
	}
}

// ColoredTextHandler wraps a slog.TextHandler and wraps each record's
// message in an ANSI color code chosen by its level, followed by a reset.
type ColoredTextHandler struct {
	inner *slog.TextHandler
}

func (h *ColoredTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ColoredTextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.Message = addColor(r.Level) + r.Message + "\033[0m"
	return h.inner.Handle(ctx, r)
}

func (h *ColoredTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColoredTextHandler{inner: h.inner.WithAttrs(attrs).(*slog.TextHandler)}
}

func (h *ColoredTextHandler) WithGroup(name string) slog.Handler {
	return &ColoredTextHandler{inner: h.inner.WithGroup(name).(*slog.TextHandler)}
}

func addColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m"
	case level >= slog.LevelWarn:
		return "\033[33m"
	case level >= slog.LevelInfo:
		return "\033[32m"
	default:
		return "\033[90m"
	}
}

// multiHandler fans a record out to every handler in the slice, matching the
// common file+console logging split.
type multiHandler []slog.Handler

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}
