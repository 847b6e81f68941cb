// Package logger configures the root zerolog logger for the verdict service.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects verbosity and output format
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // Console writer for development, JSON otherwise
}

// New builds the root logger that every component derives its child loggers
// from, and installs it as the package-level default. Unknown level strings
// fall back to info rather than failing startup.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
	log.Logger = logger
	return logger
}
