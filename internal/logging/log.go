// Package logging provides the application logger and the HTTP request-logging
// middleware.
//
// SPDX-License-Identifier: AGPL-3.0-or-later
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/jsdraven/catalog-api/internal/config"
)

// New initializes a JSON slog.Logger at the level from cfg. An optional writer
// overrides stdout, which tests use to capture output.
func New(cfg *config.Config, w ...io.Writer) *slog.Logger {
	var output io.Writer = os.Stdout
	if len(w) > 0 && w[0] != nil {
		output = w[0]
	}

	level := slog.LevelInfo
	if cfg != nil {
		level = cfg.LogLevel
	}

	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
	if cfg != nil && cfg.Name != "" {
		logger = logger.With("profile", cfg.Name)
	}
	return logger
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
