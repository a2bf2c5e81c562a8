package profile

import "patent-biblio/internal/record"

const (
	aInventor Flag = 1 << iota
	aAssignee
	aPrimaryIPC
	aPrimaryUSPC
	aRefsCited
	aClassSearch
	aLast
	aFirst
	aGiven
	aMiddle
	aFamily
	aOrg
	aCountry
	aDocID
	aDate
	aIPC
	aClass
	aSubclass
	aSection
	aGroup
	aSubgroup
	aTitle
	aAbstract
	aPerson
)

const (
	aBufLast Buf = iota
	aBufFirst
	aBufGiven
	aBufMiddle
	aBufFamily
	aBufOrg
	aBufCountry
	aBufID
	aBufDate
	aBufIPC
	aBufUSPC
	aBufTitle
	aBufAbstract
	aBufCount
)

// NewXMLApplication describes the application publications (2001 onward)
// together with the ST.36 grant vocabulary that later files share with it.
// Name parts are assembled from the separate given/family elements, and
// classifications are composed from their section, class and group parts.
func NewXMLApplication() *Profile {
	// Classification parts are only reported from the primary blocks, never
	// from cited references or the field-of-search listing.
	notCited := aRefsCited | aClassSearch

	// A person is emitted by whichever name part closes last, in either
	// element order.
	firstLast := Emission{
		Code: record.INV, When: aInventor, Value: Name, Consume: true,
		Parts: []Buf{aBufFirst, aBufLast}, Require: []Buf{aBufFirst, aBufLast},
	}
	givenFamily := Emission{
		Code: record.INV, When: aInventor, Value: Name, Consume: true,
		Parts: []Buf{aBufGiven, aBufMiddle, aBufFamily}, Require: []Buf{aBufGiven, aBufFamily},
	}
	allParts := []Reset{{Buf: aBufFirst}, {Buf: aBufLast}, {Buf: aBufGiven}, {Buf: aBufMiddle}, {Buf: aBufFamily}}
	// Names of examiners and other parties are never kept.
	dropParts := make([]Reset, len(allParts))
	for i, r := range allParts {
		dropParts[i] = Reset{Buf: r.Buf, Unless: aInventor}
	}

	return &Profile{
		Format:        XMLApplication,
		Description:   "XML application publications (2001-) and ST.36 documents",
		Syntax:        Markup,
		EntrySuffixes: []string{".xml"},
		Boundary:      xmlDeclBoundary(),
		Sections: []Section{
			{Tokens: []string{"inventors", "applicants"}, Flag: aInventor},
			{Tokens: []string{"assignees", "assignee"}, Flag: aAssignee},
			{Tokens: []string{"classification-ipc-primary", "classification-ipcr"}, Flag: aPrimaryIPC},
			{Tokens: []string{"classification-us-primary", "classification-national"}, Flag: aPrimaryUSPC},
			{Tokens: []string{"references-cited", "us-references-cited"}, Flag: aRefsCited},
			{Tokens: []string{"us-field-of-classification-search"}, Flag: aClassSearch},
		},
		Fields: []Field{
			{Tokens: []string{"last-name"}, Flag: aLast, Choose: []Emission{firstLast}, Resets: dropParts},
			{Tokens: []string{"first-name"}, Flag: aFirst, Choose: []Emission{firstLast}, Resets: dropParts},
			{Tokens: []string{"given-name"}, Flag: aGiven, Choose: []Emission{givenFamily}, Resets: dropParts},
			{Tokens: []string{"middle-name"}, Flag: aMiddle, Choose: []Emission{givenFamily}, Resets: dropParts},
			{Tokens: []string{"family-name"}, Flag: aFamily, Choose: []Emission{givenFamily}, Resets: dropParts},
			{
				// The end of a person flushes a name missing one of its parts.
				// A lone middle name is dropped.
				Tokens: []string{"name", "addressbook"}, Flag: aPerson,
				Also: []Emission{
					{Code: record.INV, When: aInventor, Value: Name, Consume: true, Parts: firstLast.Parts},
					{Code: record.INV, When: aInventor, Value: Name, Consume: true, Parts: givenFamily.Parts, Require: []Buf{aBufFamily}},
					{Code: record.INV, When: aInventor, Value: Name, Consume: true, Parts: givenFamily.Parts, Require: []Buf{aBufGiven}},
				},
				Resets: allParts,
			},
			{
				Tokens: []string{"organization-name", "orgname"}, Flag: aOrg,
				Choose: []Emission{{Code: record.AS, When: aAssignee, Buf: aBufOrg, Value: Name}},
				Resets: []Reset{{Buf: aBufOrg}},
			},
			{
				Tokens: []string{"country-code", "country"}, Flag: aCountry,
				Choose: []Emission{
					{Code: record.ICN, When: aInventor, Buf: aBufCountry},
					{Code: record.ACN, When: aAssignee, Buf: aBufCountry},
				},
				Resets: []Reset{{Buf: aBufCountry}},
			},
			{
				Tokens: []string{"doc-number"}, Flag: aDocID,
				Choose: []Emission{{Code: record.ID, Buf: aBufID, Latch: true}},
				Resets: []Reset{{Buf: aBufID}},
			},
			{
				Tokens: []string{"document-date", "date"}, Flag: aDate,
				Choose: []Emission{{Code: record.APD, Buf: aBufDate, Latch: true, Closes: []record.Code{record.ID}}},
				Resets: []Reset{{Buf: aBufDate}},
			},
			{
				Tokens: []string{"ipc"}, Flag: aIPC,
				Choose: []Emission{{Code: record.ICL, When: aPrimaryIPC, Buf: aBufIPC}},
				Resets: []Reset{{Buf: aBufIPC}},
			},
			{Tokens: []string{"class"}, Flag: aClass},
			{
				Tokens: []string{"subclass"}, Flag: aSubclass,
				Choose: []Emission{{Code: record.CCL, When: aPrimaryUSPC, Buf: aBufUSPC}},
				Resets: []Reset{{Buf: aBufUSPC, Unless: aIPC}},
			},
			{Tokens: []string{"section"}, Flag: aSection},
			{Tokens: []string{"main-group"}, Flag: aGroup},
			{
				Tokens: []string{"subgroup", "main-classification"}, Flag: aSubgroup,
				Choose: []Emission{
					{Code: record.CCL, When: aPrimaryUSPC, Unless: notCited, Buf: aBufUSPC},
					{Code: record.ICL, When: aPrimaryIPC, Unless: notCited, Buf: aBufIPC},
				},
				Resets: []Reset{{Buf: aBufUSPC}, {Buf: aBufIPC}},
			},
			{
				Tokens: []string{"title-of-invention", "invention-title"}, Flag: aTitle,
				Choose: []Emission{{Code: record.TTL, Buf: aBufTitle}},
				Resets: []Reset{{Buf: aBufTitle}},
			},
			{
				Tokens: []string{"subdoc-abstract", "abstract"}, Flag: aAbstract,
				Choose: []Emission{{Code: record.ABST, Buf: aBufAbstract, Value: Abstract}},
				Resets: []Reset{{Buf: aBufAbstract}},
			},
		},
		Routes: []Route{
			{When: aLast, Into: []Buf{aBufLast}},
			{When: aFirst, Into: []Buf{aBufFirst}},
			{When: aGiven, Into: []Buf{aBufGiven}},
			{When: aMiddle, Into: []Buf{aBufMiddle}},
			{When: aFamily, Into: []Buf{aBufFamily}},
			{When: aOrg, Into: []Buf{aBufOrg}},
			{When: aCountry, Into: []Buf{aBufCountry}},
			{When: aDate, Into: []Buf{aBufDate}},
			{When: aIPC, Into: []Buf{aBufIPC}},
			{When: aClass, Into: []Buf{aBufIPC, aBufUSPC}},
			{When: aSubclass, Into: []Buf{aBufIPC}},
			{When: aSection, Into: []Buf{aBufIPC}},
			{When: aGroup, Into: []Buf{aBufIPC}},
			{When: aSubgroup, Into: []Buf{aBufIPC, aBufUSPC}},
			{When: aTitle, Into: []Buf{aBufTitle}},
			{When: aAbstract, Into: []Buf{aBufAbstract}},
			{When: aDocID, Into: []Buf{aBufID}},
		},
		NumBuffers: int(aBufCount),
	}
}
