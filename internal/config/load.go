package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pipstrip/pipstrip/internal/featurepolicy"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen          = ":8080"
	defaultUpstreamTimeout = 30 * time.Second
	defaultWatchInterval   = 2 * time.Second
	defaultAdminListen     = "127.0.0.1:9090"
	defaultExtProcListen   = ":9001"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.baseDir = filepath.Dir(absPath)

	return cfg, nil
}

// Parse decodes a YAML document and fills in defaults. Relative paths resolve
// against the working directory.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListen
	}
	if c.Rewrite.BlockedFeature == "" {
		c.Rewrite.BlockedFeature = featurepolicy.PictureInPicture
	}
	if c.Server.UpstreamTimeout == 0 {
		c.Server.UpstreamTimeout = defaultUpstreamTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = FormatJSON
	}
	if c.Admin.Listen == "" {
		c.Admin.Listen = defaultAdminListen
	}
	if c.ExtProc.Listen == "" {
		c.ExtProc.Listen = defaultExtProcListen
	}
	if c.Watch.Interval == 0 {
		c.Watch.Interval = defaultWatchInterval
	}
}

func (c *Config) resolvePath(p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	base := c.baseDir
	if base == "" {
		base = "."
	}
	return filepath.Join(base, p)
}
