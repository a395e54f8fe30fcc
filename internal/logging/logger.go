package logging

import (
	"io"
	"os"
	"time"

	"github.com/pipstrip/pipstrip/internal/config"
	"github.com/rs/zerolog"
)

// New builds the application logger from the logging section.
func New(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if cfg.Format == config.FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(cfg.LogLevel()).With().Timestamp().Logger()
}
