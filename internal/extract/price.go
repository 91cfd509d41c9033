package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// Covers "A$29.00" too: the match starts at the dollar sign.
	currencyRe   = regexp.MustCompile(`\$\s*(\d+\.?\d{0,2})`)
	nonNumericRe = regexp.MustCompile(`[^\d.\s]`)
	numberRe     = regexp.MustCompile(`\d+\.?\d*`)
)

// Price bands.
var (
	MinPrice     = decimal.NewFromInt(5)
	MaxPrice     = decimal.NewFromInt(10000)
	MaxWinePrice = decimal.NewFromInt(500) // above this a bare number is more likely a bottle size
)

// ExtractPrice pulls a price out of noisy text such as "Item Price$37.00750ml".
// A currency-marked amount in [5, 10000] wins. Failing that, the first bare
// number in [5, 500] is taken, then the first in [5, 10000]. A comma ends
// an amount: "$10,000" yields 10.
func ExtractPrice(text string) decimal.NullDecimal {
	if text == "" {
		return decimal.NullDecimal{}
	}
	if m := currencyRe.FindStringSubmatch(text); m != nil {
		if p, ok := parseAmount(m[1]); ok && InPriceRange(p) {
			return decimal.NewNullDecimal(p)
		}
	}

	numbers := numberRe.FindAllString(nonNumericRe.ReplaceAllString(text, " "), -1)
	for _, n := range numbers {
		if p, ok := parseAmount(n); ok && p.GreaterThanOrEqual(MinPrice) && p.LessThanOrEqual(MaxWinePrice) {
			return decimal.NewNullDecimal(p)
		}
	}
	for _, n := range numbers {
		if p, ok := parseAmount(n); ok && InPriceRange(p) {
			return decimal.NewNullDecimal(p)
		}
	}
	return decimal.NullDecimal{}
}

// InPriceRange reports whether p lies in the accepted [5, 10000] band.
func InPriceRange(p decimal.Decimal) bool {
	return p.GreaterThanOrEqual(MinPrice) && p.LessThanOrEqual(MaxPrice)
}

func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
