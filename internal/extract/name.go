package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sells-group/winery-catalog/internal/model"
)

var (
	nvTokenRe  = regexp.MustCompile(`(?i)\bNV\b`)
	bareYearRe = regexp.MustCompile(`^'?\d{2,4}$`)
)

// NormalizeName cleans a raw product title given the variety and vintage
// extracted for the same product:
//
//  1. the vintage is removed from the name;
//  2. series phrases glued to the next word ("First VinesCabernet") are split;
//  3. a leading variety ("Shiraz Reserve", "RoseShe'll Be Rose") is stripped,
//     falling back to the variety itself when only a year would remain;
//  4. whitespace is collapsed.
//
// Running it again on its own output returns the output unchanged.
func (e *Extractor) NormalizeName(name, variety, vintage string) string {
	name = collapse(name)

	switch {
	case vintage == model.NonVintage:
		name = collapse(nvTokenRe.ReplaceAllString(name, " "))
	case vintage != "":
		name = collapse(strings.ReplaceAll(name, vintage, " "))
	}

	for _, re := range e.seriesRe {
		name = re.ReplaceAllStringFunc(name, splitGluedSeries)
	}

	if variety != "" {
		name = stripVariety(name, variety, e.aliases[variety])
		if name == "" {
			name = variety
		}
	}

	return collapse(name)
}

// stripVariety removes leading occurrences of the variety, spelled as its
// canonical name or any catalog alias, until none is left.
func stripVariety(name, variety string, aliases []string) string {
	for {
		rest, ok := cutVariety(name, variety, aliases)
		if !ok {
			return name
		}
		rest = collapse(rest)
		if rest == "" || bareYearRe.MatchString(rest) {
			return variety
		}
		name = rest
	}
}

func cutVariety(name, variety string, aliases []string) (string, bool) {
	for _, prefix := range append([]string{variety}, aliases...) {
		rest, ok := cutPrefixFold(name, prefix)
		if !ok {
			continue
		}
		r, _ := utf8.DecodeRuneInString(rest)
		if r == utf8.RuneError || !(unicode.IsSpace(r) || unicode.IsUpper(r)) {
			// Exact variety name, or the variety is part of a longer word.
			continue
		}
		return rest, true
	}
	return name, false
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// splitGluedSeries inserts a space between a series phrase and the word
// glued to it. The match is the phrase plus one upper-case ASCII letter; a
// phrase written in capitals is left alone so "ESTATES" stays one word.
func splitGluedSeries(m string) string {
	phrase, next := m[:len(m)-1], m[len(m)-1:]
	if last, _ := utf8.DecodeLastRuneInString(phrase); !unicode.IsLower(last) {
		return m
	}
	return phrase + " " + next
}
