package gateway

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/pipstrip/pipstrip/internal/config"
)

type Route struct {
	ID         string
	Host       string
	PathPrefix string
	Upstream   string
}

type Router struct {
	routes []Route
}

func NewRouter(cfg *config.Config) (*Router, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	routes := make([]Route, 0, len(cfg.Routes))
	for i, route := range cfg.Routes {
		routes = append(routes, Route{
			ID:         fmt.Sprintf("route-%d", i),
			Host:       strings.ToLower(strings.TrimSpace(route.Match.Host)),
			PathPrefix: route.Match.PathPrefix,
			Upstream:   route.Upstream,
		})
	}

	sort.SliceStable(routes, func(i, j int) bool {
		if len(routes[i].PathPrefix) == len(routes[j].PathPrefix) {
			// host-specific routes win over wildcard ones of the same length
			if (routes[i].Host == "") != (routes[j].Host == "") {
				return routes[i].Host != ""
			}
			return false
		}
		return len(routes[i].PathPrefix) > len(routes[j].PathPrefix)
	})

	return &Router{routes: routes}, nil
}

func (r *Router) Match(req *http.Request) (Route, bool) {
	if req == nil {
		return Route{}, false
	}

	host := strings.ToLower(stripPort(req.Host))
	reqPath := matchPath(req.URL.Path)

	for _, route := range r.routes {
		if route.Host != "" && route.Host != host {
			continue
		}
		if strings.HasPrefix(reqPath, route.PathPrefix) {
			return route, true
		}
	}

	return Route{}, false
}

// matchPath resolves dot segments and repeated slashes before prefix matching.
func matchPath(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

func stripPort(hostport string) string {
	if hostport == "" {
		return ""
	}

	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}

	return hostport
}
