package profile

import "patent-biblio/internal/record"

// Bibliographic B-tags shared by the SGML grants (1976-2001) and the first
// XML grant DTD (2002-2004).
const (
	bDocID Flag = 1 << iota
	bDate
	bIPC
	bUSC
	bTitle
	bInventor
	bAssignee
	bReadable
	bAbstract
)

const (
	bBufID Buf = iota
	bBufDate
	bBufIPC
	bBufUSC
	bBufTitle
	bBufInventor
	bBufAssignee
	bBufAbstract
	bBufCount
)

// NewSGML describes the SGML grant corpus. Streams are Latin-1 and tags are
// matched without regard to case.
func NewSGML() *Profile {
	p := bibTags()
	p.Format = SGML
	p.Description = "SGML grant full text (1976-2001), PATDOC doctype"
	p.Charset = Latin1
	p.FoldCase = true
	p.EntrySuffixes = []string{".sgml", ".sgm"}
	p.Boundary = Boundary{
		Kind:      BoundaryDoctype,
		Markers:   []string{`<!DOCTYPE PATDOC PUBLIC "-//USPTO//DTD`},
		Root:      "<PATDOC",
		Artifacts: []string{"<CITED-BY-EXAMINER>", "<B597US>"},
	}
	return p
}

// NewXMLGrant describes the 2002 XML grant corpus, which reuses the SGML
// B-tags in upper case.
func NewXMLGrant() *Profile {
	p := bibTags()
	p.Format = XMLGrant
	p.Description = "XML grant full text (2002-2004), B-tag DTD"
	p.EntrySuffixes = []string{".xml"}
	p.Boundary = xmlDeclBoundary()
	return p
}

func xmlDeclBoundary() Boundary {
	return Boundary{
		Kind:    BoundaryDecl,
		Markers: []string{`<?xml version="1.0" encoding="UTF-8"?>`, `<?xml version="1.0"?>`},
	}
}

func bibTags() *Profile {
	return &Profile{
		Syntax: Markup,
		Sections: []Section{
			{Tokens: []string{"NAM"}, Flag: bReadable},
		},
		Fields: []Field{
			{
				Tokens: []string{"B110"}, Flag: bDocID,
				Choose: []Emission{{Code: record.ID, Buf: bBufID, Latch: true}},
				Resets: []Reset{{Buf: bBufID}},
			},
			{
				Tokens: []string{"B140"}, Flag: bDate,
				Choose: []Emission{{Code: record.APD, Buf: bBufDate, Latch: true, Closes: []record.Code{record.ID}}},
				Resets: []Reset{{Buf: bBufDate}},
			},
			{
				Tokens: []string{"B511", "B512"}, Flag: bIPC,
				Choose: []Emission{{Code: record.ICL, Buf: bBufIPC}},
				Resets: []Reset{{Buf: bBufIPC}},
			},
			{
				Tokens: []string{"B521"}, Flag: bUSC,
				Choose: []Emission{{Code: record.CCL, Buf: bBufUSC}},
				Resets: []Reset{{Buf: bBufUSC}},
			},
			{
				Tokens: []string{"B540"}, Flag: bTitle,
				Choose: []Emission{{Code: record.TTL, Buf: bBufTitle}},
				Resets: []Reset{{Buf: bBufTitle}},
			},
			{
				Tokens: []string{"B721"}, Flag: bInventor,
				Choose: []Emission{{Code: record.INV, Buf: bBufInventor, Value: Name}},
				Also:   []Emission{{Code: record.ICN, Const: "US"}},
				Resets: []Reset{{Buf: bBufInventor}},
			},
			{
				Tokens: []string{"B731"}, Flag: bAssignee,
				Choose: []Emission{{Code: record.AS, Buf: bBufAssignee, Value: Name}},
				Also:   []Emission{{Code: record.ACN, Const: "US"}},
				Resets: []Reset{{Buf: bBufAssignee}},
			},
			{
				Tokens: []string{"SDOAB"}, Flag: bAbstract,
				Choose: []Emission{{Code: record.ABST, Buf: bBufAbstract, Value: Abstract}},
				Resets: []Reset{{Buf: bBufAbstract}},
			},
		},
		Routes: []Route{
			{When: bDocID, Into: []Buf{bBufID}},
			{When: bDate, Into: []Buf{bBufDate}},
			{When: bIPC, Into: []Buf{bBufIPC}},
			{When: bUSC, Into: []Buf{bBufUSC}},
			{When: bTitle, Into: []Buf{bBufTitle}},
			{When: bInventor | bReadable, Into: []Buf{bBufInventor}, Sep: " "},
			{When: bAssignee | bReadable, Into: []Buf{bBufAssignee}, Sep: " "},
			{When: bAbstract, Into: []Buf{bBufAbstract}},
		},
		NumBuffers: int(bBufCount),
	}
}
