// Package logger configures the global zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup sets the global level from name (debug, info, warn, error) and routes
// human readable output to w. Unknown names fall back to info.
func Setup(name string, w io.Writer) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
}

// SetupFromEnv is Setup with the level taken from LOG_LEVEL, or fallback when
// it is unset. Call it before loading config so config logging is formatted.
func SetupFromEnv(fallback string, w io.Writer) {
	name, ok := os.LookupEnv("LOG_LEVEL")
	if !ok || strings.TrimSpace(name) == "" {
		name = fallback
	}
	Setup(name, w)
}
