package environment

import (
	"log/slog"
	"os"
	"strings"

	"engagement-shop/internal/config"
)

const serviceName = "engagement-shop"

func initLogger(cfg config.Config) (*slog.Logger, error) {
	level := parseLogLevel(cfg.Logger.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Env == "local" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", serviceName, "env", cfg.Env), nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
