package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ResourceDir string
	Source      string
	Target      string
	LogLevel    slog.Level
	Workers     int

	// ReloadInterval re-reads the preview resources from disk when positive.
	ReloadInterval time.Duration
}

// Load reads .env (if present) and the FILTERGRAPH_* environment variables.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ResourceDir: firstNonEmpty(env("FILTERGRAPH_RESOURCE_DIR"), "./resources"),
		Source:      firstNonEmpty(env("FILTERGRAPH_SOURCE"), "source.png"),
		Target:      firstNonEmpty(env("FILTERGRAPH_TARGET"), "target.png"),
		LogLevel:    parseLevel(env("FILTERGRAPH_LOG_LEVEL")),
		Workers:     parseInt(env("FILTERGRAPH_WORKERS"), 0),

		ReloadInterval: parseDuration(env("FILTERGRAPH_RELOAD_INTERVAL")),
	}
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if raw == "" || level.UnmarshalText([]byte(raw)) != nil {
		return slog.LevelInfo
	}
	return level
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func parseDuration(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
