package extract

import "strings"

// NormalizeAbstract turns every tab and line break into a single space and
// trims the result. A CRLF pair counts as one break. Applying it twice gives
// the same result as applying it once.
func NormalizeAbstract(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '\t' || isLineBreak(r) {
			return ' '
		}
		return r
	}, s))
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', 0x1c, 0x1d, 0x1e, 0x85, 0x2028, 0x2029:
		return true
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// invertName turns "Surname; Given Names" into "Given Names Surname".
// Names without a separator are kept as they are.
func invertName(s string) string {
	surname, given, ok := strings.Cut(s, ";")
	if !ok {
		return collapse(s)
	}
	return collapse(given + " " + surname)
}
