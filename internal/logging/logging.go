package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. DEV gets a console writer on
// stderr, everything else gets JSON lines.
func Setup(level, env string) zerolog.Logger {
	var out io.Writer = os.Stderr
	if env == "DEV" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return SetupWithOutput(level, out)
}

// SetupWithOutput configures the global logger writing to w.
func SetupWithOutput(level string, w io.Writer) zerolog.Logger {
	logger := zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger
	return logger
}

// ParseLevel falls back to info for unknown levels.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Silence discards all log output. Used by tests.
func Silence() {
	log.Logger = zerolog.New(io.Discard)
}
