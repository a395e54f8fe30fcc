package config

import "time"

type Config struct {
	ConfigVersion int           `yaml:"configVersion"`
	Server        ServerConfig  `yaml:"server"`
	Upstreams     []Upstream    `yaml:"upstreams"`
	Routes        []Route       `yaml:"routes"`
	Rewrite       RewriteConfig `yaml:"rewrite"`
	Logging       LoggingConfig `yaml:"logging"`
	Metrics       MetricsConfig `yaml:"metrics"`
	Admin         AdminConfig   `yaml:"admin"`
	ExtProc       ExtProcConfig `yaml:"extProc"`
	Watch         WatchConfig   `yaml:"watch"`

	baseDir string `yaml:"-"`
}

type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	UpstreamTimeout time.Duration `yaml:"upstreamTimeout"`
	TLS             TLSConfig     `yaml:"tls"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

type Upstream struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Route struct {
	Match    RouteMatch `yaml:"match"`
	Upstream string     `yaml:"upstream"`
}

type RouteMatch struct {
	Host       string `yaml:"host"`
	PathPrefix string `yaml:"pathPrefix"`
}

type RewriteConfig struct {
	// Enabled is a pointer so an omitted key can default to true.
	Enabled        *bool  `yaml:"enabled"`
	BlockedFeature string `yaml:"blockedFeature"`
	TopLevelOnly   *bool  `yaml:"topLevelOnly"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	RewriteLog string `yaml:"rewriteLog"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type ExtProcConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type WatchConfig struct {
	Interval time.Duration `yaml:"interval"`
}

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

func (c *Config) BaseDir() string {
	return c.baseDir
}

func (c *Config) ResolvePath(path string) string {
	return c.resolvePath(path)
}

func (r RewriteConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

func (r RewriteConfig) IsTopLevelOnly() bool {
	return r.TopLevelOnly == nil || *r.TopLevelOnly
}
