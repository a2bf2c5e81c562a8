// Package record holds the canonical bibliographic record produced for every
// patent document, independent of the legacy format it was extracted from.
package record

import "path"

// Code is a canonical field code.
type Code string

const (
	ID   Code = "ID"   // document or application number
	APD  Code = "APD"  // filing or publication date
	ICL  Code = "ICL"  // international patent classification
	CCL  Code = "CCL"  // US classification
	TTL  Code = "TTL"  // title
	INV  Code = "INV"  // inventor name
	ICN  Code = "ICN"  // inventor country
	AS   Code = "AS"   // assignee name
	ACN  Code = "ACN"  // assignee country
	ABST Code = "ABST" // abstract
)

// Codes lists the full vocabulary in canonical order.
var Codes = []Code{ID, APD, ICL, CCL, TTL, INV, ICN, AS, ACN, ABST}

// Valid reports whether c belongs to the vocabulary.
func (c Code) Valid() bool {
	for _, k := range Codes {
		if k == c {
			return true
		}
	}
	return false
}

// FreeText reports whether values of c are human text (rendered quoted).
func (c Code) FreeText() bool {
	switch c {
	case TTL, INV, AS, ABST:
		return true
	}
	return false
}

// Field is one extracted (code, value) pair.
type Field struct {
	Code  Code
	Value string
}

// Record is the ordered field list of one document. It is append-only while
// a segment is being extracted.
type Record struct {
	Fields []Field
}

// Add appends a field.
func (r *Record) Add(code Code, value string) {
	r.Fields = append(r.Fields, Field{Code: code, Value: value})
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.Fields) }

// Has reports whether at least one field with code is present.
func (r Record) Has(code Code) bool {
	for _, f := range r.Fields {
		if f.Code == code {
			return true
		}
	}
	return false
}

// First returns the first value recorded under code.
func (r Record) First(code Code) (string, bool) {
	for _, f := range r.Fields {
		if f.Code == code {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns every value recorded under code, in extraction order.
func (r Record) Values(code Code) []string {
	var out []string
	for _, f := range r.Fields {
		if f.Code == code {
			out = append(out, f.Value)
		}
	}
	return out
}

// Document ties a record to where its raw segment came from.
type Document struct {
	Archive string // archive base name, empty for a bare container file
	Entry   string // entry path inside the archive
	Index   int    // segment ordinal within the container
	Format  string
	Record  Record
}

// Name is the source document name used in output lines.
func (d Document) Name() string {
	return path.Base(d.Entry)
}
