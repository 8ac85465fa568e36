// Package logging wires a JSON slog logger shared by the whole process,
// writing to stdout and a rotated file.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey struct{}

// Init builds the base logger. Call once in main and pass child loggers
// down; there is no lazy global fallback.
func Init(component, filePath string) *slog.Logger {
	_ = os.MkdirAll(filepath.Dir(filePath), 0o755)

	rotated := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    50, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
	}
	writer := io.MultiWriter(os.Stdout, rotated)

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With("component", component)
}

// WithCtx stores a request-scoped logger in the context.
func WithCtx(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromCtx returns the request-scoped logger, or a discard-free default.
func FromCtx(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}
