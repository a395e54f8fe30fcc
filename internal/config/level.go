package config

import (
	"strings"

	"github.com/rs/zerolog"
)

func parseLevel(level string) (zerolog.Level, error) {
	return zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
}

// LogLevel returns the configured level, falling back to info.
func (l LoggingConfig) LogLevel() zerolog.Level {
	lvl, err := parseLevel(l.Level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
