package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pipstrip/pipstrip/internal/config"
	"github.com/rs/zerolog"
)

func TestRewriteLoggerWritesJSONL(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRewriteLogger(&buf)

	event := Event{
		Timestamp: time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
		RequestID: "req-1",
		Source:    SourceProxy,
		Outcome:   "rewritten",
		Removed:   1,
		Before:    strings.Repeat("a", 400),
		After:     "autoplay 'self'",
	}

	if err := logger.Write(event); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if err := logger.Write(event); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var parsed Event
	if err := json.Unmarshal([]byte(lines[0]), &parsed); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(parsed.Before) != maxValueBytes {
		t.Fatalf("expected before length %d, got %d", maxValueBytes, len(parsed.Before))
	}
	if parsed.After != "autoplay 'self'" || parsed.Removed != 1 {
		t.Fatalf("unexpected event %+v", parsed)
	}
}

func TestNewLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggingConfig{Level: "warn", Format: config.FormatJSON}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("k", "v").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered, got %q", out)
	}
	if !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("expected structured field, got %q", out)
	}
	if logger.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %s", logger.GetLevel())
	}
}
