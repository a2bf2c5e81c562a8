// Package emit renders records as the tab-separated line format consumed by
// downstream tools:
//
//	FILE/<name>\tID/<id>\tTTL/"<title>"...\n
//
// Free-text values are wrapped in double quotes. There is no trailing tab.
package emit

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"patent-biblio/internal/record"
)

// Sink is a buffered destination. *bufio.Writer satisfies it.
type Sink interface {
	io.Writer
	Flush() error
}

var sanitizer = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

// Line renders the output line of one document, newline included.
func Line(name string, rec record.Record) string {
	var b strings.Builder
	b.WriteString("FILE/")
	b.WriteString(sanitizer.Replace(name))
	for _, f := range rec.Fields {
		b.WriteByte('\t')
		b.WriteString(string(f.Code))
		b.WriteByte('/')
		v := sanitizer.Replace(f.Value)
		if f.Code.FreeText() {
			b.WriteByte('"')
			b.WriteString(v)
			b.WriteByte('"')
		} else {
			b.WriteString(v)
		}
	}
	b.WriteByte('\n')
	return b.String()
}

// Writer serializes lines from concurrent workers onto one sink and flushes
// after every line, so a crash never leaves a partial record behind.
type Writer struct {
	mu    sync.Mutex
	sink  Sink
	lines int64
}

// NewWriter wraps sink.
func NewWriter(sink Sink) *Writer {
	return &Writer{sink: sink}
}

// Write emits one document.
func (w *Writer) Write(_ context.Context, doc record.Document) error {
	line := Line(doc.Name(), doc.Record)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.sink, line); err != nil {
		return fmt.Errorf("write record %s: %w", doc.Name(), err)
	}
	if err := w.sink.Flush(); err != nil {
		return fmt.Errorf("flush record %s: %w", doc.Name(), err)
	}
	w.lines++
	return nil
}

// Lines returns how many records have been written.
func (w *Writer) Lines() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}
