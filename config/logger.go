package config

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger builds the process logger described by the logging section. All
// events carry the provided component field.
func (c LoggingConfig) Logger(component string) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if c.Console {
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		log = zerolog.New(writer)
	} else {
		log = zerolog.New(os.Stderr)
	}

	return log.Level(level).With().
		Timestamp().Str("component", component).Logger()
}
