package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. format "json" writes structured lines to
// stdout; anything else writes human readable lines to stderr.
func New(level string, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if format == "json" {
		return zerolog.New(os.Stdout).
			Level(lvl).
			With().
			Timestamp().
			Caller().
			Logger()
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}
