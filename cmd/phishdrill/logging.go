package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/phishdrill/internal/config"
)

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging builds the process logger. Console output goes to stderr so
// the MCP stdio transport stays clean. When cfg.File is set, JSON lines are
// also appended there; a relative name lands in ~/.phishdrill/logs.
func setupLogging(cfg config.LogConfig, console io.Writer) (*slog.Logger, func() error, error) {
	level := parseLogLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var consoleHandler slog.Handler
	if cfg.Format == "json" {
		consoleHandler = slog.NewJSONHandler(console, opts)
	} else {
		consoleHandler = slog.NewTextHandler(console, opts)
	}

	if cfg.File == "" {
		return slog.New(consoleHandler), func() error { return nil }, nil
	}

	path := cfg.File
	if !filepath.IsAbs(path) {
		dir, err := config.EnsureDir()
		if err != nil {
			return nil, nil, err
		}
		path = filepath.Join(dir, "logs", path)
	}

	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	handler := &multiHandler{
		handlers: []slog.Handler{
			slog.NewJSONHandler(logFile, opts),
			consoleHandler,
		},
	}
	return slog.New(handler), logFile.Close, nil
}

// multiHandler logs to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
