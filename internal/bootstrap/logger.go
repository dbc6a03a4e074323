package bootstrap

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"medtrak/internal/config"
)

// NewLogger builds the process logger. Pretty output is meant for local
// development; everything else logs JSON lines.
func NewLogger(cfg config.LogConfig, appName string) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", appName).Logger()
}
