package profile

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrUnknownFormat   = errors.New("unknown format")
	ErrDuplicateFormat = errors.New("duplicate format")
	ErrTokenConflict   = errors.New("token conflict")
	ErrInvalidProfile  = errors.New("invalid profile")
)

// Registry maps format identifiers to profiles. It is read-only once built
// and safe for concurrent use.
type Registry struct {
	profiles map[Format]*Profile
}

// NewRegistry validates and indexes the given profiles. Any duplicate format,
// token declared twice or out-of-range buffer fails the whole registry.
func NewRegistry(profiles ...*Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[Format]*Profile, len(profiles))}
	for _, p := range profiles {
		if _, dup := r.profiles[p.Format]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFormat, p.Format)
		}
		if err := p.compile(); err != nil {
			return nil, fmt.Errorf("format %s: %w", p.Format, err)
		}
		r.profiles[p.Format] = p
	}
	return r, nil
}

// Builtin returns a registry of the four supported formats.
func Builtin() (*Registry, error) {
	return NewRegistry(NewSGML(), NewAPS(), NewXMLApplication(), NewXMLGrant())
}

// Lookup returns the profile registered under f.
func (r *Registry) Lookup(f Format) (*Profile, error) {
	p, ok := r.profiles[f]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
	}
	return p, nil
}

// Formats lists registered identifiers in sorted order.
func (r *Registry) Formats() []Format {
	out := make([]Format, 0, len(r.profiles))
	for f := range r.profiles {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Profile) compile() error {
	if p.Format == "" {
		return fmt.Errorf("%w: empty format identifier", ErrInvalidProfile)
	}
	if len(p.Boundary.Markers) == 0 {
		return fmt.Errorf("%w: no boundary markers", ErrInvalidProfile)
	}
	if len(p.EntrySuffixes) == 0 {
		return fmt.Errorf("%w: no entry suffixes", ErrInvalidProfile)
	}

	index := make(map[string]Token)
	var owned Flag
	claim := func(tokens []string, flag Flag, t Token) error {
		if !flag.Single() {
			return fmt.Errorf("%w: tokens %v need exactly one flag bit", ErrInvalidProfile, tokens)
		}
		if owned.Any(flag) {
			return fmt.Errorf("%w: flag of %v already owned", ErrTokenConflict, tokens)
		}
		owned |= flag
		for _, tok := range tokens {
			k := p.Key(tok)
			if _, dup := index[k]; dup {
				return fmt.Errorf("%w: %q declared twice", ErrTokenConflict, tok)
			}
			index[k] = t
		}
		return nil
	}

	for i := range p.Sections {
		s := &p.Sections[i]
		if err := claim(s.Tokens, s.Flag, Token{Kind: SectionToken, Flag: s.Flag, Section: s}); err != nil {
			return err
		}
	}
	for i := range p.Fields {
		f := &p.Fields[i]
		if err := claim(f.Tokens, f.Flag, Token{Kind: FieldToken, Flag: f.Flag, Field: f}); err != nil {
			return err
		}
		for _, e := range append(append([]Emission{}, f.Choose...), f.Also...) {
			if err := p.checkEmission(e); err != nil {
				return err
			}
		}
		for _, rs := range f.Resets {
			if err := p.checkBuf(rs.Buf); err != nil {
				return err
			}
		}
	}
	for _, rt := range p.Routes {
		if rt.When == 0 {
			return fmt.Errorf("%w: route without condition", ErrInvalidProfile)
		}
		for _, b := range rt.Into {
			if err := p.checkBuf(b); err != nil {
				return err
			}
		}
	}
	p.index = index
	return nil
}

func (p *Profile) checkEmission(e Emission) error {
	if !e.Code.Valid() {
		return fmt.Errorf("%w: unknown code %q", ErrInvalidProfile, e.Code)
	}
	for _, b := range e.Require {
		if err := p.checkBuf(b); err != nil {
			return err
		}
	}
	if e.Const != "" {
		return nil
	}
	if len(e.Parts) > 0 {
		for _, b := range e.Parts {
			if err := p.checkBuf(b); err != nil {
				return err
			}
		}
		return nil
	}
	return p.checkBuf(e.Buf)
}

func (p *Profile) checkBuf(b Buf) error {
	if b < 0 || int(b) >= p.NumBuffers {
		return fmt.Errorf("%w: buffer %d out of range", ErrInvalidProfile, b)
	}
	return nil
}
