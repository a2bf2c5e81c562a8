package archive

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
)

// DefaultExcluded lists archives known to be unreadable in the bulk sets.
var DefaultExcluded = []string{"pa030501.zip"}

// Exclusions is a set of archive or entry base names to skip.
type Exclusions struct {
	names map[string]struct{}
}

// NewExclusions builds a set from names. Matching ignores case.
func NewExclusions(names ...string) *Exclusions {
	e := &Exclusions{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		e.add(n)
	}
	return e
}

// LoadExclusions reads one name per line from file, ignoring blank lines and
// '#' comments, and merges extra names. An empty file path reads nothing.
func LoadExclusions(file string, extra ...string) (*Exclusions, error) {
	e := NewExclusions(extra...)
	if file == "" {
		return e, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open exclusions: %w", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line, _, _ := strings.Cut(sc.Text(), "#")
		e.add(line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read exclusions: %w", err)
	}
	return e, nil
}

func (e *Exclusions) add(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	e.names[strings.ToLower(path.Base(name))] = struct{}{}
}

// Has reports whether the base name of p is excluded.
func (e *Exclusions) Has(p string) bool {
	if e == nil {
		return false
	}
	_, ok := e.names[strings.ToLower(path.Base(strings.ReplaceAll(p, "\\", "/")))]
	return ok
}

// Names returns the excluded names in sorted order.
func (e *Exclusions) Names() []string {
	out := make([]string, 0, len(e.names))
	for n := range e.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
