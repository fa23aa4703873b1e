// Package logging provides structured logging for dutopia using zerolog.
package logging

import (
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var logger *zerolog.Logger

func init() {
	// JSON at info level until the CLI flags are parsed
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger = &l
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init configures the global logger from the CLI flags. Debug lowers the
// level, human switches to the console writer. Color is only used when
// stderr is a terminal, so redirected logs stay clean.
func Init(debug bool, human bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var out zerolog.LevelWriter
	if human {
		out = zerolog.LevelWriterAdapter{Writer: zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		}}
	} else {
		out = zerolog.LevelWriterAdapter{Writer: os.Stderr}
	}

	l := zerolog.New(out).With().Timestamp().Logger()
	logger = &l
}

// L returns the base logger.
func L() *zerolog.Logger {
	return logger
}

// WithPhase returns a logger with the phase field set.
func WithPhase(phase string) zerolog.Logger {
	return logger.With().Str("phase", phase).Logger()
}

// SetLogger overrides the global logger, mainly for tests.
func SetLogger(l zerolog.Logger) {
	logger = &l
}
