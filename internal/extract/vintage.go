package extract

import (
	"regexp"
	"strconv"

	"github.com/sells-group/winery-catalog/internal/model"
	"github.com/sells-group/winery-catalog/internal/rules"
)

var (
	nvRe        = regexp.MustCompile(`(?i)\bNV\b`)
	fullYearRe  = regexp.MustCompile(`(19[0-9]{2}|20[0-2][0-9]|2030)`)
	shortYearRe = regexp.MustCompile(`'?(\d{2})\b`)
)

// Vintage is a vintage found in free text.
type Vintage struct {
	Value string // "NV" or a 4-digit year
	Year  int    // zero for NV
	NV    bool
	Short bool // expanded from a 2-digit year
}

// Within reports whether the vintage is plausible for a source with window w.
func (v Vintage) Within(w rules.Window) bool {
	if v.NV {
		return w.AllowNV
	}
	if v.Short && !w.AllowShort {
		return false
	}
	return w.Contains(v.Year)
}

// MatchVintage finds the vintage in text. A whole-word NV wins over any
// digits; otherwise the first 4-digit year in 1900..2030 is taken, even
// when glued to other characters; otherwise a 2-digit year with an
// optional apostrophe is expanded (00-30 to 20xx, 31-99 to 19xx).
func MatchVintage(text string) (Vintage, bool) {
	if text == "" {
		return Vintage{}, false
	}
	if nvRe.MatchString(text) {
		return Vintage{Value: model.NonVintage, NV: true}, true
	}
	if m := fullYearRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		return Vintage{Value: m[1], Year: year}, true
	}
	if m := shortYearRe.FindStringSubmatch(text); m != nil {
		short, _ := strconv.Atoi(m[1])
		year := 1900 + short
		if short <= 30 {
			year = 2000 + short
		}
		return Vintage{Value: strconv.Itoa(year), Year: year, Short: true}, true
	}
	return Vintage{}, false
}

// ExtractVintage returns the vintage in text, or "" when there is none.
// No plausibility check is applied; callers pick a window per source.
func ExtractVintage(text string) string {
	v, ok := MatchVintage(text)
	if !ok {
		return ""
	}
	return v.Value
}

// VintageWithin returns the vintage in text when it falls inside w.
func VintageWithin(text string, w rules.Window) string {
	v, ok := MatchVintage(text)
	if !ok || !v.Within(w) {
		return ""
	}
	return v.Value
}
