package profile

import "patent-biblio/internal/record"

const (
	tPatent Flag = 1 << iota
	tInventor
	tAssignee
	tClass
	tAbstract
	tAPN
	tAPD
	tTTL
	tNAM
	tCNT
	tOCL
	tICL
	tPAL
)

const (
	tBufAPN Buf = iota
	tBufAPD
	tBufTTL
	tBufNAM
	tBufCNT
	tBufOCL
	tBufICL
	tBufPAL
	tBufCount
)

// NewAPS describes the fixed-column annotated text grants (APS green book).
// Four-character headers open sections; three-character keys at column 0
// open fields and indented lines continue the previous field.
func NewAPS() *Profile {
	return &Profile{
		Format:        APS,
		Description:   "APS fixed-column text grants (1976-2001)",
		Syntax:        Lines,
		Charset:       Latin1,
		Exclusive:     true,
		EntrySuffixes: []string{".txt"},
		EntrySkip:     []string{"lst.txt", "rpt.txt"},
		Boundary: Boundary{
			Kind:         BoundaryToken,
			Markers:      []string{"PATN"},
			DropPreamble: true,
		},
		Sections: []Section{
			{Tokens: []string{"PATN"}, Flag: tPatent},
			{Tokens: []string{"INVT"}, Flag: tInventor},
			{Tokens: []string{"ASSG"}, Flag: tAssignee},
			{Tokens: []string{"CLAS"}, Flag: tClass},
			{Tokens: []string{"ABST"}, Flag: tAbstract},
		},
		Fields: []Field{
			{
				Tokens: []string{"APN"}, Flag: tAPN,
				Choose: []Emission{{Code: record.ID, When: tPatent, Buf: tBufAPN, Latch: true}},
				Resets: []Reset{{Buf: tBufAPN}},
			},
			{
				Tokens: []string{"APD"}, Flag: tAPD,
				Choose: []Emission{{Code: record.APD, When: tPatent, Buf: tBufAPD, Latch: true, Closes: []record.Code{record.ID}}},
				Resets: []Reset{{Buf: tBufAPD}},
			},
			{
				Tokens: []string{"TTL"}, Flag: tTTL,
				Choose: []Emission{{Code: record.TTL, When: tPatent, Buf: tBufTTL}},
				Resets: []Reset{{Buf: tBufTTL}},
			},
			{
				Tokens: []string{"NAM"}, Flag: tNAM,
				Choose: []Emission{
					{Code: record.INV, When: tInventor, Buf: tBufNAM, Value: InvertedName},
					{Code: record.AS, When: tAssignee, Buf: tBufNAM, Value: Name},
				},
				Resets: []Reset{{Buf: tBufNAM}},
			},
			{
				Tokens: []string{"CNT"}, Flag: tCNT,
				Choose: []Emission{
					{Code: record.ICN, When: tInventor, Buf: tBufCNT},
					{Code: record.ACN, When: tAssignee, Buf: tBufCNT},
				},
				Resets: []Reset{{Buf: tBufCNT}},
			},
			{
				Tokens: []string{"OCL"}, Flag: tOCL,
				Choose: []Emission{{Code: record.CCL, When: tClass, Buf: tBufOCL}},
				Resets: []Reset{{Buf: tBufOCL}},
			},
			{
				Tokens: []string{"ICL"}, Flag: tICL,
				Choose: []Emission{{Code: record.ICL, When: tClass, Buf: tBufICL}},
				Resets: []Reset{{Buf: tBufICL}},
			},
			{
				Tokens: []string{"PAL"}, Flag: tPAL,
				Choose: []Emission{{Code: record.ABST, When: tAbstract, Buf: tBufPAL, Value: Abstract}},
				Resets: []Reset{{Buf: tBufPAL}},
			},
		},
		Routes: []Route{
			{When: tAPN, Into: []Buf{tBufAPN}},
			{When: tAPD, Into: []Buf{tBufAPD}},
			{When: tTTL, Into: []Buf{tBufTTL}},
			{When: tNAM, Into: []Buf{tBufNAM}},
			{When: tCNT, Into: []Buf{tBufCNT}},
			{When: tOCL, Into: []Buf{tBufOCL}},
			{When: tICL, Into: []Buf{tBufICL}},
			{When: tPAL, Into: []Buf{tBufPAL}},
		},
		NumBuffers: int(tBufCount),
	}
}
