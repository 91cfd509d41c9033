package extract

import (
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/winery-catalog/internal/model"
)

// Validation failures. A record failing validation is dropped before
// persistence; it is not a scrape error.
var (
	ErrMissingName     = eris.New("extract: missing name")
	ErrMissingPrice    = eris.New("extract: missing price")
	ErrPriceOutOfRange = eris.New("extract: price out of range")
)

const (
	minTriageNameLen = 5
	maxTriageNameLen = 200
)

// Triage reasons.
const (
	ReasonMissingName        = "Missing name"
	ReasonMissingPrice       = "Missing price"
	ReasonNameTooShort       = "Name too short"
	ReasonNameTooLong        = "Name too long"
	ReasonNoVariety          = "Could not determine variety"
	ReasonPriceLow           = "Price unusually low"
	ReasonPriceHigh          = "Price unusually high"
	ReasonMissingDescription = "Missing description"
)

// Validate reports why a record cannot be stored, or nil.
func Validate(w model.RawWine) error {
	if w.Name == "" {
		return ErrMissingName
	}
	if !w.Price.Valid {
		return eris.Wrapf(ErrMissingPrice, "%q", w.Name)
	}
	if !InPriceRange(w.Price.Decimal) {
		return eris.Wrapf(ErrPriceOutOfRange, "%q at %s", w.Name, w.Price.Decimal.StringFixed(2))
	}
	return nil
}

// Triage flags a valid but suspicious record for manual review. It never
// blocks storage; the reasons are informational.
func Triage(w model.RawWine) (bool, []string) {
	var reasons []string

	if w.Name == "" {
		reasons = append(reasons, ReasonMissingName)
	}
	if !w.Price.Valid {
		reasons = append(reasons, ReasonMissingPrice)
	}

	switch n := utf8.RuneCountInString(w.Name); {
	case n < minTriageNameLen:
		reasons = append(reasons, ReasonNameTooShort)
	case n > maxTriageNameLen:
		reasons = append(reasons, ReasonNameTooLong)
	}

	if w.Variety == "" {
		reasons = append(reasons, ReasonNoVariety)
	}

	if w.Price.Valid {
		switch {
		case w.Price.Decimal.LessThan(MinPrice):
			reasons = append(reasons, ReasonPriceLow)
		case w.Price.Decimal.GreaterThan(MaxWinePrice):
			reasons = append(reasons, ReasonPriceHigh)
		}
	}

	if w.Description == "" {
		reasons = append(reasons, ReasonMissingDescription)
	}

	return len(reasons) > 0, reasons
}
