// Package logger is the process-wide structured logger.
//
// Calls take a message followed by alternating key/value pairs:
//
//	logger.Info("request created", "room", room, "role", role)
//	logger.Error("watch failed", err, "path", path)
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
	With().Timestamp().Logger().Level(zerolog.InfoLevel)

// Init configures output and level. Production emits JSON lines; anything
// else a human-readable console format.
func Init(environment, level string, out io.Writer) error {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	w := out
	if environment != "production" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	log = zerolog.New(w).With().Timestamp().Logger().Level(lvl)
	return nil
}

// Disable drops all output; tests use it to keep runs quiet.
func Disable() { log = zerolog.Nop() }

func Debug(msg string, keyValues ...any) { log.Debug().Fields(keyValues).Msg(msg) }

func Info(msg string, keyValues ...any) { log.Info().Fields(keyValues).Msg(msg) }

func Warn(msg string, keyValues ...any) { log.Warn().Fields(keyValues).Msg(msg) }

// Error logs msg with err attached under the "error" key.
func Error(msg string, err error, keyValues ...any) {
	log.Error().Err(err).Fields(keyValues).Msg(msg)
}
