package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `configVersion: 1
server:
  listen: "127.0.0.1:8080"
upstreams:
  - name: app
    url: http://127.0.0.1:3000
routes:
  - match:
      pathPrefix: /
    upstream: app
rewrite:
  enabled: false
logging:
  level: debug
  format: console
  rewriteLog: logs/rewrites.jsonl
`

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipstrip.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Rewrite.IsEnabled() {
		t.Fatal("expected rewrite disabled")
	}
	if !cfg.Rewrite.IsTopLevelOnly() {
		t.Fatal("expected topLevelOnly default true")
	}
	if cfg.Rewrite.BlockedFeature != "picture-in-picture" {
		t.Fatalf("unexpected blocked feature %q", cfg.Rewrite.BlockedFeature)
	}
	if cfg.Watch.Interval != 2*time.Second {
		t.Fatalf("unexpected watch interval %s", cfg.Watch.Interval)
	}
	if got := cfg.ResolvePath(cfg.Logging.RewriteLog); got != filepath.Join(dir, "logs", "rewrites.jsonl") {
		t.Fatalf("unexpected resolved path %q", got)
	}
}

func TestValidateOK(t *testing.T) {
	cfg, err := Parse([]byte(strings.Replace(sampleYAML, "  rewriteLog: logs/rewrites.jsonl\n", "", 1)))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			t.Fatalf("unexpected problems: %v", verr.Problems)
		}
		t.Fatalf("Validate error: %v", err)
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := &Config{
		ConfigVersion: 2,
		Upstreams:     []Upstream{{Name: "app", URL: "not a url"}},
		Routes:        []Route{{Upstream: "missing"}},
		Rewrite:       RewriteConfig{BlockedFeature: "picture-in-picture camera"},
		Logging:       LoggingConfig{Level: "loud", Format: "xml"},
		Metrics:       MetricsConfig{Enabled: true},
	}
	cfg.applyDefaults()

	err := cfg.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	want := []string{
		"configVersion must be 1",
		"logging.format must be json|console",
		"metrics.enabled requires admin.enabled",
		"rewrite.blockedFeature must be a single token",
		`routes[0].upstream "missing" does not exist`,
		"routes[0].match.pathPrefix is required",
	}
	for _, msg := range want {
		if !containsProblem(verr.Problems, msg) {
			t.Fatalf("expected problem %q in %v", msg, verr.Problems)
		}
	}
}

func containsProblem(problems []string, msg string) bool {
	for _, p := range problems {
		if strings.HasPrefix(p, msg) {
			return true
		}
	}
	return false
}
