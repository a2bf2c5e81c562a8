package batch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// sampleSize bounds the raw segment excerpt kept per diagnostic entry.
const sampleSize = 512

// DiagnosticEntry describes one degraded segment.
type DiagnosticEntry struct {
	Timestamp     string `json:"timestamp"`
	RunID         string `json:"run_id,omitempty"`
	Archive       string `json:"archive,omitempty"`
	Entry         string `json:"entry"`
	Segment       int    `json:"segment"`
	Format        string `json:"format"`
	FailureReason string `json:"failure_reason"`
	Fields        int    `json:"fields_extracted"`
	Sample        string `json:"sample,omitempty"`
}

// Diagnostics appends one JSON object per line.
type Diagnostics struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// OpenDiagnostics opens path for appending, creating its directory.
func OpenDiagnostics(path string) (*Diagnostics, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("diagnostics dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open diagnostics: %w", err)
	}
	return &Diagnostics{w: f, c: f}, nil
}

// NewDiagnostics writes entries to w.
func NewDiagnostics(w io.Writer) *Diagnostics {
	return &Diagnostics{w: w}
}

// Write stamps and appends entry. Nil receivers drop the entry.
func (d *Diagnostics) Write(entry DiagnosticEntry) error {
	if d == nil {
		return nil
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().Format(time.RFC3339)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal diagnostic: %w", err)
	}
	data = append(data, '\n')

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.w.Write(data); err != nil {
		return fmt.Errorf("write diagnostic: %w", err)
	}
	return nil
}

func (d *Diagnostics) Close() error {
	if d == nil || d.c == nil {
		return nil
	}
	return d.c.Close()
}

func sample(data []byte) string {
	if len(data) > sampleSize {
		data = data[:sampleSize]
	}
	return string(data)
}
