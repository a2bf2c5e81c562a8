// Package segment splits a raw container stream into per-document segments
// using the boundary rule of a format profile.
package segment

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"patent-biblio/internal/profile"
)

// Segment is the raw text of one document.
type Segment struct {
	Index int
	Data  []byte
}

// Blank reports whether the segment holds nothing but whitespace.
func (s Segment) Blank() bool {
	return len(bytes.TrimSpace(s.Data)) == 0
}

// Segmenter yields segments in stream order. It reads one line at a time, so
// memory stays bounded by the largest single document.
//
//	sc := segment.New(r, prof)
//	for sc.Next() {
//		seg := sc.Segment()
//	}
//	if err := sc.Err(); err != nil { ... }
type Segmenter struct {
	r *bufio.Reader
	b profile.Boundary

	cur      bytes.Buffer
	seg      Segment
	ready    []Segment
	index    int
	started  bool // a boundary has been seen
	prologue bool // inside a doctype prologue
	eof      bool
	err      error
}

// New returns a segmenter over r. Latin-1 streams are transcoded to UTF-8.
func New(r io.Reader, p *profile.Profile) *Segmenter {
	if p.Charset == profile.Latin1 {
		r = transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	}
	return &Segmenter{
		r: bufio.NewReaderSize(r, 64*1024),
		b: p.Boundary,
	}
}

// Next advances to the next segment. The final segment of a stream is always
// produced, even when it is empty.
func (s *Segmenter) Next() bool {
	for len(s.ready) == 0 {
		if s.eof || s.err != nil {
			return false
		}
		line, err := s.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			s.err = err
			return false
		}
		if line != "" {
			s.feed(line)
		}
		if err != nil {
			s.eof = true
			s.flush(true)
		}
	}
	s.seg = s.ready[0]
	s.ready = s.ready[1:]
	return true
}

// Segment returns the segment produced by the last call to Next.
func (s *Segmenter) Segment() Segment { return s.seg }

// Err returns the first read error, if any.
func (s *Segmenter) Err() error { return s.err }

func (s *Segmenter) feed(line string) {
	switch s.b.Kind {
	case profile.BoundaryDoctype:
		s.feedDoctype(line)
	case profile.BoundaryToken:
		s.feedToken(line)
	case profile.BoundaryDecl:
		s.feedDecl(line)
	default:
		s.cur.WriteString(line)
	}
}

func (s *Segmenter) feedDoctype(line string) {
	for _, a := range s.b.Artifacts {
		line = strings.ReplaceAll(line, a, "")
	}
	if containsAny(line, s.b.Markers) {
		s.flush(false)
		s.started = true
		s.cur.WriteString(line)
		s.prologue = s.b.Root != "" && !strings.Contains(line, s.b.Root)
		return
	}
	if s.prologue {
		s.cur.WriteString(line)
		if strings.Contains(line, s.b.Root) {
			s.prologue = false
		}
		return
	}
	s.cur.WriteString(line)
}

func (s *Segmenter) feedToken(line string) {
	key := strings.TrimRight(line, " \t\r\n")
	for _, m := range s.b.Markers {
		if key == m {
			s.flush(false)
			s.started = true
			s.cur.WriteString(line)
			return
		}
	}
	if !s.started && s.b.DropPreamble {
		return
	}
	s.cur.WriteString(line)
}

// feedDecl strips the declaration from its line. Whatever shares the line
// belongs to the document being closed, and the declaration opens the next.
func (s *Segmenter) feedDecl(line string) {
	for _, m := range s.b.Markers {
		i := strings.Index(line, m)
		if i < 0 {
			continue
		}
		s.cur.WriteString(line[:i])
		s.cur.WriteString(line[i+len(m):])
		s.flush(false)
		s.started = true
		s.cur.WriteString(m)
		s.cur.WriteByte('\n')
		return
	}
	s.cur.WriteString(line)
}

// flush queues the current buffer. A blank buffer is only queued at end of
// stream so that a stream never yields an empty leading segment.
func (s *Segmenter) flush(final bool) {
	if !final && len(bytes.TrimSpace(s.cur.Bytes())) == 0 {
		s.cur.Reset()
		return
	}
	data := make([]byte, s.cur.Len())
	copy(data, s.cur.Bytes())
	s.cur.Reset()
	s.prologue = false
	s.ready = append(s.ready, Segment{Index: s.index, Data: data})
	s.index++
}

func containsAny(line string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}
