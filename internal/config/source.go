package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/pipstrip/pipstrip/internal/toggle"
	"github.com/rs/zerolog"
)

// FileSource polls a config file and publishes its rewrite settings.
// A missing file yields the default settings; a file that fails to parse or
// validate is logged and the previous settings stay in force.
type FileSource struct {
	path     string
	interval time.Duration
	log      zerolog.Logger

	// OnReload, when set, is called after every reload attempt.
	OnReload func(err error)

	mu      sync.Mutex
	modTime time.Time
	last    toggle.Settings
}

func NewFileSource(path string, interval time.Duration, logger zerolog.Logger) *FileSource {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	return &FileSource{
		path:     path,
		interval: interval,
		log:      logger.With().Str("component", "config").Str("path", path).Logger(),
		last:     toggle.DefaultSettings(),
	}
}

func (s *FileSource) Load(ctx context.Context) (toggle.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.last = toggle.DefaultSettings()
		return s.last, nil
	}
	if err != nil {
		return toggle.Settings{}, err
	}

	settings, err := s.read()
	if err != nil {
		return toggle.Settings{}, err
	}
	s.modTime = info.ModTime()
	s.last = settings
	return settings, nil
}

func (s *FileSource) Subscribe(ctx context.Context) <-chan toggle.Settings {
	ch := make(chan toggle.Settings, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				settings, changed := s.poll()
				if !changed {
					continue
				}
				select {
				case ch <- settings:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}

func (s *FileSource) poll() (toggle.Settings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn().Err(err).Msg("stat config failed")
		}
		return s.last, false
	}
	if info.ModTime().Equal(s.modTime) {
		return s.last, false
	}
	s.modTime = info.ModTime()

	settings, err := s.read()
	if s.OnReload != nil {
		s.OnReload(err)
	}
	if err != nil {
		s.log.Error().Err(err).Msg("config reload rejected")
		return s.last, false
	}
	s.log.Debug().Bool("enabled", settings.Enabled).Msg("config reloaded")
	s.last = settings
	return settings, true
}

func (s *FileSource) read() (toggle.Settings, error) {
	cfg, err := Load(s.path)
	if err != nil {
		return toggle.Settings{}, err
	}
	if err := cfg.Validate(); err != nil {
		return toggle.Settings{}, err
	}
	return toggle.Settings{Enabled: cfg.Rewrite.IsEnabled()}, nil
}
