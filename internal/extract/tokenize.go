package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// walkMarkup streams SGML or XML tokens into h. The decoder runs in
// non-strict mode with HTML entities so that SGML entity references,
// unquoted attributes and mismatched end tags are tolerated. It stops at the
// first syntax error.
func walkMarkup(data []byte, h handler) error {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	d.Entity = xml.HTMLEntity
	d.CharsetReader = charsetReader

	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("offset %d: %w", d.InputOffset(), err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			h.start(t.Name.Local, false)
		case xml.EndElement:
			h.end(t.Name.Local)
		case xml.CharData:
			h.text(string(t))
		}
	}
}

func charsetReader(label string, in io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(in), nil
}

// walkLines feeds fixed-column text into h. Trailing blanks are ignored, so
// a line without an inner space is a section header. A line starting with a
// key and a space opens that field with the rest of the line as its text. An
// indented line continues the open field. Fields close at the next
// non-continuation line.
func walkLines(data []byte, h handler) {
	open := ""
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line != "" && (line[0] == ' ' || line[0] == '\t') {
			if open != "" {
				h.text(" " + strings.TrimSpace(line))
			}
			continue
		}
		if open != "" {
			h.end(open)
			open = ""
		}
		if line == "" {
			continue
		}
		key, value, isField := strings.Cut(line, " ")
		if !isField {
			h.start(line, true)
			continue
		}
		h.start(key, false)
		h.text(strings.TrimSpace(value))
		open = key
	}
	if open != "" {
		h.end(open)
	}
}
