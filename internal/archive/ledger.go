package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Ledger remembers archives that were fully processed, one path per line,
// so an interrupted run can resume without emitting duplicates.
type Ledger struct {
	path string
	mu   sync.RWMutex
	done map[string]bool
}

// OpenLedger loads the ledger at path. A missing file is an empty ledger.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path, done: make(map[string]bool)}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			l.done[line] = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return l, nil
}

// Len returns the number of recorded archives.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.done)
}

// Done reports whether archive was already processed.
func (l *Ledger) Done(archive string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.done[archive]
}

// Mark records archive as processed and appends it to the ledger file.
func (l *Ledger) Mark(archive string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done[archive] {
		return nil
	}
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ledger dir: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(archive + "\n"); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	l.done[archive] = true
	return nil
}
