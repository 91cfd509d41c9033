// Package extract turns scraped text into wine fields. The functions here do
// no I/O; everything they know comes from the rules they are built with.
package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/winery-catalog/internal/rules"
)

// Extractor applies a fixed rule set. It is safe for concurrent use.
type Extractor struct {
	rules    *rules.Rules
	seriesRe []*regexp.Regexp
	nonWine  map[string]bool
	aliases  map[string][]string // canonical variety -> catalog spellings
}

// New compiles the patterns derived from r.
func New(r *rules.Rules) *Extractor {
	e := &Extractor{
		rules:   r,
		nonWine: make(map[string]bool, len(r.NonWineNames)),
		aliases: make(map[string][]string),
	}
	for _, v := range r.Varieties {
		if !strings.EqualFold(v.Match, v.Canonical) {
			e.aliases[v.Canonical] = append(e.aliases[v.Canonical], v.Match)
		}
	}
	for _, s := range r.Series {
		// Series matches in any case; the glued word must start upper case.
		e.seriesRe = append(e.seriesRe, regexp.MustCompile(`(?i:`+regexp.QuoteMeta(s)+`)[A-Z]`))
	}
	for _, n := range r.NonWineNames {
		e.nonWine[strings.ToLower(n)] = true
	}
	return e
}

// Rules returns the rule set the extractor was built from.
func (e *Extractor) Rules() *rules.Rules { return e.rules }

// Variety returns the canonical name of the first catalog entry contained in
// text, or "". Catalog order decides between several matches, not position
// in the text, and matches inside longer words count.
func (e *Extractor) Variety(text string) string {
	if text == "" {
		return ""
	}
	lower := strings.ToLower(norm.NFC.String(text))
	for _, v := range e.rules.Varieties {
		if strings.Contains(lower, v.Match) {
			return v.Canonical
		}
	}
	return ""
}

// IsNonWineName reports whether name is page chrome such as "Cart".
func (e *Extractor) IsNonWineName(name string) bool {
	return e.nonWine[strings.ToLower(strings.TrimSpace(name))]
}

// AcceptDescription reports whether text is long enough and is not
// shipping or policy boilerplate.
func (e *Extractor) AcceptDescription(text string, minLen int) bool {
	if len([]rune(text)) <= minLen {
		return false
	}
	lower := strings.ToLower(text)
	for _, p := range e.rules.DescriptionSkipPhrases {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}
