package rewrite

import (
	"net/http"
	"reflect"
	"testing"
)

func TestFieldsStripsBlockedFeature(t *testing.T) {
	rw := New("")
	in := []Field{
		{Name: "Content-Type", Value: "text/html"},
		{Name: "Feature-Policy", Value: "autoplay 'self'; picture-in-picture"},
		{Name: "X-Frame-Options", Value: "DENY"},
	}

	res := rw.Fields(in)
	if res.Outcome != OutcomeRewritten {
		t.Fatalf("expected rewritten, got %s", res.Outcome)
	}
	if res.Removed != 1 {
		t.Fatalf("expected 1 removed directive, got %d", res.Removed)
	}
	want := []Field{
		{Name: "Content-Type", Value: "text/html"},
		{Name: "X-Frame-Options", Value: "DENY"},
		{Name: HeaderName, Value: "autoplay 'self'"},
	}
	if !reflect.DeepEqual(res.Fields, want) {
		t.Fatalf("expected %v, got %v", want, res.Fields)
	}
}

func TestFieldsDropsEmptiedHeader(t *testing.T) {
	rw := New("picture-in-picture")
	in := []Field{
		{Name: " feature-POLICY ", Value: "picture-in-picture 'none'"},
		{Name: "Server", Value: "x"},
	}

	res := rw.Fields(in)
	if res.Outcome != OutcomeRemoved {
		t.Fatalf("expected removed, got %s", res.Outcome)
	}
	if len(res.Fields) != 1 || res.Fields[0].Name != "Server" {
		t.Fatalf("expected only Server header, got %v", res.Fields)
	}
}

func TestFieldsMergesRepeatedHeaders(t *testing.T) {
	rw := New("")
	in := []Field{
		{Name: "feature-policy", Value: "camera 'none'"},
		{Name: "feature-policy", Value: "picture-in-picture; usb 'self'"},
	}

	res := rw.Fields(in)
	if res.Outcome != OutcomeRewritten {
		t.Fatalf("expected rewritten, got %s", res.Outcome)
	}
	if len(res.Fields) != 1 || res.Fields[0].Value != "camera 'none';usb 'self'" {
		t.Fatalf("unexpected fields %v", res.Fields)
	}
}

func TestFieldsUnchangedWithoutBlockedFeature(t *testing.T) {
	rw := New("")
	in := []Field{
		{Name: "feature-policy", Value: "camera 'none'"},
		{Name: "feature-policy", Value: "usb   'self'"},
	}

	res := rw.Fields(in)
	if res.Outcome != OutcomeUnchanged || res.Changed() {
		t.Fatalf("expected unchanged, got %s", res.Outcome)
	}
	if !reflect.DeepEqual(res.Fields, in) {
		t.Fatalf("expected headers untouched, got %v", res.Fields)
	}
}

func TestFieldsHeaderAbsent(t *testing.T) {
	res := New("").Fields([]Field{{Name: "Server", Value: "x"}})
	if res.Outcome != OutcomeUnchanged || res.Before != "" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestHeaderInPlace(t *testing.T) {
	h := http.Header{}
	h.Add("Feature-Policy", "x y; picture-in-picture; z w")
	h.Set("Cache-Control", "no-store")

	res := New("").Header(h)
	if res.Outcome != OutcomeRewritten {
		t.Fatalf("expected rewritten, got %s", res.Outcome)
	}
	if got := h.Get("Feature-Policy"); got != "x y;z w" {
		t.Fatalf("expected %q, got %q", "x y;z w", got)
	}
	if len(h.Values("Feature-Policy")) != 1 {
		t.Fatalf("expected a single header value, got %v", h.Values("Feature-Policy"))
	}
	if h.Get("Cache-Control") != "no-store" {
		t.Fatal("expected other headers untouched")
	}
}

func TestHeaderRemovesNonCanonicalKey(t *testing.T) {
	h := http.Header{"feature-policy": []string{"picture-in-picture"}}

	res := New("").Header(h)
	if res.Outcome != OutcomeRemoved {
		t.Fatalf("expected removed, got %s", res.Outcome)
	}
	if len(h) != 0 {
		t.Fatalf("expected empty header map, got %v", h)
	}
}
