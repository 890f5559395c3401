package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prasenjit/go-mockserver/internal/config"
)

// Configure builds the process logger from the logging section of the config.
func Configure(cfg config.LoggingConfig) zerolog.Logger {
	return New(cfg, os.Stdout)
}

// New builds a logger writing to out.
func New(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	output := out
	if !cfg.Enabled {
		output = io.Discard
	} else if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}
