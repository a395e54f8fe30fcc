package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type ValidationError struct {
	Problems []string
}

func (v *ValidationError) Add(format string, args ...any) {
	v.Problems = append(v.Problems, fmt.Sprintf(format, args...))
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%d validation error(s)", len(v.Problems))
}

func (c *Config) Validate() error {
	v := &ValidationError{}

	if c.ConfigVersion != 1 {
		v.Add("configVersion must be 1")
	}

	if err := validateListen(c.Server.Listen); err != nil {
		v.Add("server.listen invalid: %v", err)
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			v.Add("server.tls.certFile required when tls.enabled is true")
		}
		if c.Server.TLS.KeyFile == "" {
			v.Add("server.tls.keyFile required when tls.enabled is true")
		}
		if c.Server.TLS.CertFile != "" {
			if err := requireFile(c.resolvePath(c.Server.TLS.CertFile)); err != nil {
				v.Add("server.tls.certFile invalid: %v", err)
			}
		}
		if c.Server.TLS.KeyFile != "" {
			if err := requireFile(c.resolvePath(c.Server.TLS.KeyFile)); err != nil {
				v.Add("server.tls.keyFile invalid: %v", err)
			}
		}
	}

	if c.Admin.Enabled {
		if err := validateListen(c.Admin.Listen); err != nil {
			v.Add("admin.listen invalid: %v", err)
		}
	}
	if c.Metrics.Enabled && !c.Admin.Enabled {
		v.Add("metrics.enabled requires admin.enabled")
	}

	if c.ExtProc.Enabled {
		if err := validateListen(c.ExtProc.Listen); err != nil {
			v.Add("extProc.listen invalid: %v", err)
		}
	}

	feature := c.Rewrite.BlockedFeature
	if strings.TrimSpace(feature) == "" {
		v.Add("rewrite.blockedFeature is required")
	} else if len(strings.Fields(feature)) != 1 || strings.Contains(feature, ";") || strings.TrimSpace(feature) != feature {
		v.Add("rewrite.blockedFeature must be a single token")
	}
	if c.Server.UpstreamTimeout < 0 {
		v.Add("server.upstreamTimeout must be >= 0")
	}
	if c.Watch.Interval < 0 {
		v.Add("watch.interval must be >= 0")
	}

	switch c.Logging.Format {
	case FormatJSON, FormatConsole:
	default:
		v.Add("logging.format must be json|console")
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		v.Add("logging.level invalid: %v", err)
	}

	upstreamNames := map[string]struct{}{}
	for i, upstream := range c.Upstreams {
		if upstream.Name == "" {
			v.Add("upstreams[%d].name is required", i)
		} else if _, exists := upstreamNames[upstream.Name]; exists {
			v.Add("upstreams[%d].name %q is duplicated", i, upstream.Name)
		} else {
			upstreamNames[upstream.Name] = struct{}{}
		}

		if upstream.URL == "" {
			v.Add("upstreams[%d].url is required", i)
		} else if err := validateURL(upstream.URL); err != nil {
			v.Add("upstreams[%d].url invalid: %v", i, err)
		}
	}

	for i, route := range c.Routes {
		if route.Match.PathPrefix == "" {
			v.Add("routes[%d].match.pathPrefix is required", i)
		}
		if route.Upstream == "" {
			v.Add("routes[%d].upstream is required", i)
		} else if _, exists := upstreamNames[route.Upstream]; !exists {
			v.Add("routes[%d].upstream %q does not exist", i, route.Upstream)
		}
	}

	if c.Logging.RewriteLog != "" {
		if err := ensureWritable(c.resolvePath(c.Logging.RewriteLog)); err != nil {
			v.Add("logging.rewriteLog invalid: %v", err)
		}
	}

	if len(v.Problems) > 0 {
		sort.Strings(v.Problems)
		return v
	}
	return nil
}

func validateListen(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("address is required")
	}
	if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return err
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("must include scheme and host")
	}
	return nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

func ensureWritable(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	file, err := os.CreateTemp(dir, "pipstrip-validate-*")
	if err != nil {
		return err
	}
	name := file.Name()
	if err := file.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
