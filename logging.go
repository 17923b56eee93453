package rda

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// =====================================
// Logging
// =====================================

// NewLogger builds the structured logger used across the layer.
// Pretty switches to the human-readable console writer; an unknown
// level falls back to info.
func NewLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}
