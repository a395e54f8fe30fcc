package gateway

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/pipstrip/pipstrip/internal/config"
)

func TestRouterMatchLongestPrefix(t *testing.T) {
	cfg := &config.Config{
		Routes: []config.Route{
			{Match: config.RouteMatch{PathPrefix: "/api"}},
			{Match: config.RouteMatch{PathPrefix: "/api/v1"}},
		},
	}

	router, err := NewRouter(cfg)
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}

	req := &http.Request{URL: &url.URL{Path: "/api/v1/users"}, Host: "example.com"}
	route, ok := router.Match(req)
	if !ok {
		t.Fatal("expected route match")
	}
	if route.PathPrefix != "/api/v1" {
		t.Fatalf("expected /api/v1, got %q", route.PathPrefix)
	}
}

func TestRouterMatchHost(t *testing.T) {
	cfg := &config.Config{
		Routes: []config.Route{
			{Match: config.RouteMatch{Host: "", PathPrefix: "/"}, Upstream: "any"},
			{Match: config.RouteMatch{Host: "Example.com", PathPrefix: "/"}, Upstream: "site"},
		},
	}

	router, err := NewRouter(cfg)
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}

	req := &http.Request{URL: &url.URL{Path: "/"}, Host: "example.com:8443"}
	route, ok := router.Match(req)
	if !ok {
		t.Fatal("expected route match")
	}
	if route.Upstream != "site" {
		t.Fatalf("expected host route to win, got %q", route.Upstream)
	}

	req = &http.Request{URL: &url.URL{Path: "/"}, Host: "other.test"}
	route, ok = router.Match(req)
	if !ok || route.Upstream != "any" {
		t.Fatalf("expected wildcard route, got %+v", route)
	}
}

func TestRouterMatchCleansPath(t *testing.T) {
	cfg := &config.Config{
		Routes: []config.Route{
			{Match: config.RouteMatch{PathPrefix: "/"}, Upstream: "site"},
			{Match: config.RouteMatch{PathPrefix: "/admin/"}, Upstream: "admin"},
		},
	}

	router, err := NewRouter(cfg)
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}

	tests := map[string]string{
		"/public/../admin/panel": "admin",
		"//admin//":              "admin",
		"/admin/../public":       "site",
		"":                       "site",
	}
	for p, want := range tests {
		route, ok := router.Match(&http.Request{URL: &url.URL{Path: p}})
		if !ok || route.Upstream != want {
			t.Fatalf("path %q: expected %q, got %+v", p, want, route)
		}
	}
}

func TestMatchPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"a/b", "/a/b"},
		{"/a/./b/", "/a/b/"},
		{"/../..", "/"},
	}
	for _, tt := range tests {
		if got := matchPath(tt.in); got != tt.want {
			t.Fatalf("matchPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
