package quality

import (
	"context"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/winery-catalog/internal/model"
	"github.com/sells-group/winery-catalog/internal/store"
)

// upperTokens stay uppercase when a name is title-cased.
var upperTokens = map[string]bool{"NV": true, "ML": true}

// NameFix is a proposed (or applied) rename of a shouted wine name.
type NameFix struct {
	WineID   int64  `json:"wine_id"`
	WineryID int64  `json:"winery_id"`
	Old      string `json:"old"`
	New      string `json:"new"`
}

// NeedsCapsFix reports whether name looks like it was scraped in ALL
// CAPS: three or more uppercase words longer than one letter, or a first
// word that is uppercase and longer than three letters.
func NeedsCapsFix(name string) bool {
	words := strings.Fields(name)
	if len(words) == 0 {
		return false
	}
	upper := 0
	for _, w := range words {
		if isUpperWord(w) && len([]rune(w)) > 1 {
			upper++
		}
	}
	return upper >= 3 || (isUpperWord(words[0]) && len([]rune(words[0])) > 3)
}

// TitleCaseName title-cases each word of name, keeping NV and ML upper.
func TitleCaseName(name string) string {
	caser := cases.Title(language.English)
	words := strings.Fields(name)
	for i, w := range words {
		if upperTokens[strings.ToUpper(w)] {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}

// FixCaps finds shouted wine names, of one winery when wineryID > 0, and
// renames them when apply is set. The fixes are returned either way.
func FixCaps(ctx context.Context, st store.Store, wineryID int64, apply bool) ([]NameFix, error) {
	var wines []model.Wine
	var err error
	if wineryID > 0 {
		wines, err = st.ListWinesByWinery(ctx, wineryID)
	} else {
		wines, _, err = st.ListWines(ctx, model.WineFilter{})
	}
	if err != nil {
		return nil, eris.Wrap(err, "quality: list wines")
	}

	var fixes []NameFix
	for _, w := range wines {
		if !NeedsCapsFix(w.Name) {
			continue
		}
		renamed := TitleCaseName(w.Name)
		if renamed == w.Name {
			continue
		}
		fix := NameFix{WineID: w.ID, WineryID: w.WineryID, Old: w.Name, New: renamed}
		if apply {
			if err := st.UpdateWineName(ctx, w.ID, renamed); err != nil {
				return fixes, eris.Wrapf(err, "quality: rename wine %d", w.ID)
			}
			zap.L().Info("quality: renamed wine", zap.Int64("wine_id", w.ID), zap.String("old", w.Name), zap.String("new", renamed))
		}
		fixes = append(fixes, fix)
	}
	return fixes, nil
}

// isUpperWord mirrors a cased-letters-only uppercase test: at least one
// letter and no lowercase letters.
func isUpperWord(w string) bool {
	cased := false
	for _, r := range w {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}
