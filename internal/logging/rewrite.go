package logging

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const maxValueBytes = 256

// Event is written as a single JSON object per intercepted response.
type Event struct {
	Timestamp  time.Time `json:"ts"`
	RequestID  string    `json:"request_id"`
	Source     string    `json:"source"`
	Host       string    `json:"host"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	RouteID    string    `json:"route_id"`
	TopLevel   bool      `json:"top_level"`
	Outcome    string    `json:"outcome"`
	Removed    int       `json:"removed"`
	Before     string    `json:"before,omitempty"`
	After      string    `json:"after,omitempty"`
	StatusCode int       `json:"status_code"`
	DurationMS int64     `json:"duration_ms"`
}

const (
	SourceProxy   = "proxy"
	SourceExtProc = "extproc"
)

type RewriteLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewRewriteLogger(w io.Writer) *RewriteLogger {
	return &RewriteLogger{w: w}
}

func OpenRewriteLog(path string) (*RewriteLogger, func() error, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return NewRewriteLogger(file), file.Close, nil
}

func (l *RewriteLogger) Write(event Event) error {
	event.Before = truncate(event.Before)
	event.After = truncate(event.After)

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(append(data, '\n'))
	return err
}

func truncate(value string) string {
	if len(value) > maxValueBytes {
		return value[:maxValueBytes]
	}
	return value
}
