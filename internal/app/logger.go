package app

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a configured zerolog.Logger based on configuration.
func NewLogger(cfg *Config) zerolog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *Config, out io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	var w io.Writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	if cfg != nil {
		if parsed, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
			level = parsed
		}
		if cfg.LogFormat == "json" {
			w = out
		}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
