// Package logger builds the zerolog logger used across Cornerstone.
package logger

import (
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/GyroZepelix/cornerstone/internal/config"
)

// New returns a logger writing to out in the configured format and level.
// An unknown level falls back to info.
func New(cfg config.LogConfig, out io.Writer) zerolog.Logger {
	if strings.ToLower(cfg.Format) == "console" {
		out = zerolog.ConsoleWriter{Out: out, NoColor: true}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
