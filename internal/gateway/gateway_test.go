package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pipstrip/pipstrip/internal/config"
	"github.com/pipstrip/pipstrip/internal/logging"
	"github.com/rs/zerolog"
)

func newBackend(t *testing.T, policy string) *httptest.Server {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if policy != "" {
			w.Header().Set("Feature-Policy", policy)
		}
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(backend.Close)
	return backend
}

func pageRequest(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Sec-Fetch-Dest", "document")
	return req
}

func TestGatewayStripsPictureInPicture(t *testing.T) {
	backend := newBackend(t, "autoplay 'self'; picture-in-picture 'none'")

	gw, err := New(sampleConfig(backend.URL), zerolog.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	var buf bytes.Buffer
	gw.SetRewriteLogger(logging.NewRewriteLogger(&buf))
	gw.Attach()

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, pageRequest("http://example.com/"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Feature-Policy"); got != "autoplay 'self'" {
		t.Fatalf("expected stripped policy, got %q", got)
	}
	if rec.Header().Get("X-Upstream") != "yes" {
		t.Fatal("expected other headers to pass through")
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "ok" {
		t.Fatalf("expected body ok, got %q", string(body))
	}

	var event logging.Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &event); err != nil {
		t.Fatalf("invalid rewrite log: %v", err)
	}
	if event.Outcome != "rewritten" || event.Removed != 1 || event.RouteID != "route-0" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestGatewayRemovesEmptiedHeader(t *testing.T) {
	backend := newBackend(t, "picture-in-picture")

	gw, err := New(sampleConfig(backend.URL), zerolog.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	gw.Attach()

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, pageRequest("http://example.com/"))

	if _, ok := rec.Header()["Feature-Policy"]; ok {
		t.Fatalf("expected Feature-Policy to be omitted, got %q", rec.Header().Values("Feature-Policy"))
	}
}

func TestGatewayDetachedPassesThrough(t *testing.T) {
	policy := "picture-in-picture 'none'"
	backend := newBackend(t, policy)

	gw, err := New(sampleConfig(backend.URL), zerolog.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	gw.Attach()
	gw.Detach()
	if gw.Attached() {
		t.Fatal("expected gateway detached")
	}

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, pageRequest("http://example.com/"))

	if got := rec.Header().Get("Feature-Policy"); got != policy {
		t.Fatalf("expected untouched policy, got %q", got)
	}
}

func TestGatewaySkipsSubresources(t *testing.T) {
	policy := "picture-in-picture 'none'"
	backend := newBackend(t, policy)

	gw, err := New(sampleConfig(backend.URL), zerolog.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	gw.Attach()

	req := httptest.NewRequest(http.MethodGet, "http://example.com/frame", nil)
	req.Header.Set("Sec-Fetch-Dest", "iframe")
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if got := rec.Header().Get("Feature-Policy"); got != policy {
		t.Fatalf("expected iframe response untouched, got %q", got)
	}
}

func TestGatewayRewritesAllWhenNotTopLevelOnly(t *testing.T) {
	backend := newBackend(t, "picture-in-picture; camera")

	cfg := sampleConfig(backend.URL)
	off := false
	cfg.Rewrite.TopLevelOnly = &off
	gw, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	gw.Attach()

	req := httptest.NewRequest(http.MethodGet, "http://example.com/app.js", nil)
	req.Header.Set("Sec-Fetch-Dest", "script")
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if got := rec.Header().Get("Feature-Policy"); got != "camera" {
		t.Fatalf("expected camera, got %q", got)
	}
}

func TestGatewayNotFound(t *testing.T) {
	backend := newBackend(t, "")

	cfg := sampleConfig(backend.URL)
	cfg.Routes[0].Match.PathPrefix = "/app"
	gw, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, pageRequest("http://example.com/other"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGatewayUpstreamDown(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	url := backend.URL
	backend.Close()

	gw, err := New(sampleConfig(url), zerolog.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	gw.Attach()

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, pageRequest("http://example.com/"))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "upstream error") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func sampleConfig(upstreamURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{UpstreamTimeout: 2 * time.Second},
		Upstreams: []config.Upstream{
			{Name: "backend", URL: upstreamURL},
		},
		Routes: []config.Route{
			{
				Match:    config.RouteMatch{PathPrefix: "/"},
				Upstream: "backend",
			},
		},
		Rewrite: config.RewriteConfig{BlockedFeature: "picture-in-picture"},
	}
}
