package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/adampresley/photomap/internal/configuration"
)

func setupLogger(config *configuration.Config, version string) {
	level := slog.LevelInfo

	switch strings.ToLower(config.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	slog.SetDefault(slog.New(h).With(slog.String("version", version)))
}
