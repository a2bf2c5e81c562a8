// Package profile describes each supported legacy patent format as data: how
// its streams split into documents, which tokens open sections and fields,
// where text is captured and which canonical codes are emitted when a field
// closes. The extraction machine is shared by every format and only reads
// these tables.
package profile

import (
	"math/bits"
	"path"
	"strings"

	"patent-biblio/internal/record"
)

// Format identifies a registered profile.
type Format string

const (
	SGML           Format = "sgml"
	APS            Format = "aps"
	XMLApplication Format = "xml-appl"
	XMLGrant       Format = "xml-grant"
)

// Syntax selects the tokenizer that feeds the machine.
type Syntax int

const (
	Markup Syntax = iota // element-structured (SGML or XML)
	Lines                // fixed-column annotated text
)

// Charset is the byte encoding of the raw stream.
type Charset int

const (
	UTF8 Charset = iota
	Latin1
)

// BoundaryKind selects the segmentation rule.
type BoundaryKind int

const (
	// BoundaryDoctype starts a document at a line containing a marker and
	// keeps the following prologue verbatim up to the root element line.
	BoundaryDoctype BoundaryKind = iota + 1
	// BoundaryToken starts a document at a line equal to a marker.
	BoundaryToken
	// BoundaryDecl splits on an XML declaration that may share its line
	// with the tail of the previous document.
	BoundaryDecl
)

// Boundary holds the segmentation rule of a format.
type Boundary struct {
	Kind    BoundaryKind
	Markers []string
	// Root is the document-root opening tag that ends a doctype prologue.
	Root string
	// Artifacts are stray tags removed from every line, prologue included.
	Artifacts []string
	// DropPreamble discards lines preceding the first boundary.
	DropPreamble bool
}

// Flag is a set of active sections and fields. Each section and field of a
// profile owns exactly one bit.
type Flag uint64

// Has reports whether every bit of g is set in f. The empty set is always
// contained.
func (f Flag) Has(g Flag) bool { return f&g == g }

// Any reports whether f and g share at least one bit.
func (f Flag) Any(g Flag) bool { return f&g != 0 }

// Bit returns the position of the single bit of f.
func (f Flag) Bit() int { return bits.TrailingZeros64(uint64(f)) }

// Single reports whether exactly one bit is set.
func (f Flag) Single() bool { return bits.OnesCount64(uint64(f)) == 1 }

// Buf is the index of a text accumulation buffer.
type Buf int

// Value selects the normalization applied to an emitted value.
type Value int

const (
	Plain        Value = iota // trimmed
	Name                      // internal whitespace collapsed
	InvertedName              // "Surname; Given" reordered to "Given Surname"
	Abstract                  // tabs and line breaks turned into spaces
)

// Emission produces one field when a field token closes.
type Emission struct {
	Code record.Code
	// When must be fully active and Unless fully inactive.
	When   Flag
	Unless Flag
	// Exactly one source: Const, Parts or Buf.
	Const string
	Parts []Buf
	Buf   Buf
	Value Value
	// Require holds buffers that must all hold text for the emission to
	// match. Consume clears the source buffers once it fires.
	Require []Buf
	Consume bool
	// Latch limits Code to a single emission per document. Closes latches
	// further codes once this emission fires.
	Latch  bool
	Closes []record.Code
}

// Reset clears a buffer after a field closes, unless any Unless flag is
// still active.
type Reset struct {
	Buf    Buf
	Unless Flag
}

// Section is a token group whose only effect is toggling a state flag.
type Section struct {
	Tokens []string
	Flag   Flag
}

// Field is a token group that toggles a flag and emits on close.
type Field struct {
	Tokens []string
	Flag   Flag
	// Choose fires the first matching emission; Also fires every matching one.
	Choose []Emission
	Also   []Emission
	Resets []Reset
}

// Route sends character data into buffers while When is active. Routes are
// tried in order and the first match wins.
type Route struct {
	When Flag
	Into []Buf
	// Sep is appended after each captured chunk.
	Sep string
}

// TokenKind tells sections from fields.
type TokenKind int

const (
	SectionToken TokenKind = iota + 1
	FieldToken
)

// Token is the resolved meaning of a tag or line key.
type Token struct {
	Kind    TokenKind
	Flag    Flag
	Section *Section
	Field   *Field
}

// Profile is the complete, immutable description of one format.
type Profile struct {
	Format      Format
	Description string
	Syntax      Syntax
	Charset     Charset
	// FoldCase makes token matching case-insensitive.
	FoldCase bool
	// Exclusive resets every flag when a new section header line is seen.
	Exclusive bool

	EntrySuffixes []string
	EntrySkip     []string

	Boundary   Boundary
	Sections   []Section
	Fields     []Field
	Routes     []Route
	NumBuffers int

	index map[string]Token
}

// Key normalizes a token for lookup.
func (p *Profile) Key(name string) string {
	if p.FoldCase {
		return strings.ToUpper(name)
	}
	return name
}

// Lookup resolves a tag name or line key.
func (p *Profile) Lookup(name string) (Token, bool) {
	t, ok := p.index[p.Key(name)]
	return t, ok
}

// AcceptsEntry reports whether an archive entry holds documents of this
// format.
func (p *Profile) AcceptsEntry(name string) bool {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	lower := strings.ToLower(base)
	for _, skip := range p.EntrySkip {
		if strings.HasSuffix(lower, skip) {
			return false
		}
	}
	for _, suf := range p.EntrySuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	return false
}
