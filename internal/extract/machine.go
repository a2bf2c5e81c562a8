// Package extract runs the field-state machine over one document segment and
// produces its canonical record. All format knowledge comes from the profile
// tables; this package only walks tokens and applies them.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"patent-biblio/internal/profile"
	"patent-biblio/internal/record"
)

// ErrMalformed marks a segment whose markup could not be fully tokenized.
// The record returned alongside it holds every field closed before the
// failure point.
var ErrMalformed = errors.New("malformed segment")

// Segment extracts the record of a single document.
func Segment(data []byte, p *profile.Profile) (record.Record, error) {
	m := newMachine(p)
	var err error
	switch p.Syntax {
	case profile.Lines:
		walkLines(data, m)
	default:
		err = walkMarkup(data, m)
	}
	if err != nil {
		return m.rec, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m.rec, nil
}

// handler receives tokens in document order.
type handler interface {
	start(name string, header bool)
	end(name string)
	text(s string)
}

// machine holds per-document state. A fresh machine is used for every
// segment, so nothing leaks between documents.
type machine struct {
	p       *profile.Profile
	active  profile.Flag
	depth   [64]uint16
	bufs    []strings.Builder
	latched map[record.Code]bool
	rec     record.Record
}

func newMachine(p *profile.Profile) *machine {
	return &machine{
		p:       p,
		bufs:    make([]strings.Builder, p.NumBuffers),
		latched: make(map[record.Code]bool, 2),
	}
}

func (m *machine) start(name string, header bool) {
	if header && m.p.Exclusive {
		m.active = 0
		m.depth = [64]uint16{}
	}
	tok, ok := m.p.Lookup(name)
	if !ok {
		return
	}
	m.depth[tok.Flag.Bit()]++
	m.active |= tok.Flag
}

func (m *machine) end(name string) {
	tok, ok := m.p.Lookup(name)
	if !ok {
		return
	}
	if tok.Kind == profile.FieldToken {
		m.close(tok.Field)
	}
	// Nested sections of the same kind only release the innermost level.
	bit := tok.Flag.Bit()
	if m.depth[bit] > 0 {
		m.depth[bit]--
	}
	if m.depth[bit] == 0 {
		m.active &^= tok.Flag
	}
}

func (m *machine) text(s string) {
	for _, rt := range m.p.Routes {
		if !m.active.Has(rt.When) {
			continue
		}
		for _, b := range rt.Into {
			m.bufs[b].WriteString(s)
			m.bufs[b].WriteString(rt.Sep)
		}
		return
	}
}

func (m *machine) close(f *profile.Field) {
	for _, e := range f.Choose {
		if m.matches(e) {
			m.emit(e)
			break
		}
	}
	for _, e := range f.Also {
		if m.matches(e) {
			m.emit(e)
		}
	}
	for _, r := range f.Resets {
		if !m.active.Any(r.Unless) {
			m.bufs[r.Buf].Reset()
		}
	}
}

func (m *machine) matches(e profile.Emission) bool {
	if !m.active.Has(e.When) || m.active.Any(e.Unless) {
		return false
	}
	for _, b := range e.Require {
		if strings.TrimSpace(m.bufs[b].String()) == "" {
			return false
		}
	}
	return true
}

func (m *machine) emit(e profile.Emission) {
	if e.Latch && m.latched[e.Code] {
		return
	}
	v := m.value(e)
	if v == "" {
		return
	}
	m.rec.Add(e.Code, v)
	if e.Consume {
		m.consume(e)
	}
	if e.Latch {
		m.latched[e.Code] = true
		for _, c := range e.Closes {
			m.latched[c] = true
		}
	}
}

func (m *machine) consume(e profile.Emission) {
	switch {
	case e.Const != "":
		return
	case len(e.Parts) == 0:
		m.bufs[e.Buf].Reset()
		return
	}
	for _, b := range e.Parts {
		m.bufs[b].Reset()
	}
}

func (m *machine) value(e profile.Emission) string {
	var raw string
	switch {
	case e.Const != "":
		return e.Const
	case len(e.Parts) > 0:
		parts := make([]string, 0, len(e.Parts))
		for _, b := range e.Parts {
			if s := strings.TrimSpace(m.bufs[b].String()); s != "" {
				parts = append(parts, s)
			}
		}
		raw = strings.Join(parts, " ")
	default:
		raw = m.bufs[e.Buf].String()
	}

	switch e.Value {
	case profile.Name:
		return collapse(raw)
	case profile.InvertedName:
		return invertName(raw)
	case profile.Abstract:
		return NormalizeAbstract(raw)
	default:
		return strings.TrimSpace(raw)
	}
}
