// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/sudo-init-do/dutydinar/internal/config"
)

// Setup installs the default logger: JSON in production, text otherwise.
func Setup(cfg *config.Config) *slog.Logger {
	logger := New(os.Stdout, cfg.IsProduction(), cfg.LogLevel)
	slog.SetDefault(logger)
	return logger
}

func New(w io.Writer, jsonFormat bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if jsonFormat {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
