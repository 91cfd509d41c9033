package extract

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var invisibles = strings.NewReplacer(
	"\u00a0", " ",
	"\u200b", "",
	"\ufeff", "",
)

// CleanText normalizes scraped text: NFC composition, non-breaking spaces
// to plain spaces, zero-width characters dropped, whitespace collapsed.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = invisibles.Replace(norm.NFC.String(s))
	return strings.Join(strings.Fields(s), " ")
}
