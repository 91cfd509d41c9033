package scrape

import (
	"net/url"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/winery-catalog/internal/extract"
	"github.com/sells-group/winery-catalog/internal/model"
)

// parseListingCards extracts records straight from product cards on a
// listing page, for shops whose product pages add nothing to the cards. It
// returns the card selector used, or "" when no selector found enough cards.
func parseListingCards(ex *extract.Extractor, doc *goquery.Document, base *url.URL, wineryID int64) ([]model.RawWine, string) {
	lr := ex.Rules().Listing

	var cards *goquery.Selection
	var used string
	for _, sel := range lr.CardSelectors {
		found := doc.Find(sel)
		if found.Length() > lr.MinCards {
			cards, used = found, sel
			break
		}
	}
	if cards == nil {
		return nil, ""
	}
	if lr.MaxCards > 0 && cards.Length() > lr.MaxCards {
		cards = cards.Slice(0, lr.MaxCards)
	}

	w := ex.Rules().Windows
	var out []model.RawWine
	cards.Each(func(_ int, card *goquery.Selection) {
		name := cardText(card, lr.NameSelectors, func(s string) bool {
			return utf8.RuneCountInString(s) > 3
		})
		if name == "" || ex.IsNonWineName(name) {
			return
		}

		rec := model.RawWine{WineryID: wineryID}
		rec.Vintage = extract.VintageWithin(name, w.Loose)
		rec.Variety = ex.Variety(name)
		rec.Name = ex.NormalizeName(name, rec.Variety, rec.Vintage)

		for _, sel := range lr.PriceSelectors {
			s := card.Find(sel).First()
			if s.Length() == 0 {
				continue
			}
			if rec.Price = extract.ExtractPrice(extract.CleanText(s.Text())); rec.Price.Valid {
				break
			}
		}

		if href, ok := card.Find("a").First().Attr("href"); ok {
			if u, ok := CanonicalURL(base, href); ok {
				rec.ProductURL = u
			}
		}

		rec.Description = cardText(card, lr.DescriptionSelectors, func(s string) bool {
			return ex.AcceptDescription(s, lr.MinDescriptionLen)
		})

		out = append(out, rec)
	})
	return out, used
}

// cardText returns the first selector text within card that satisfies ok.
func cardText(card *goquery.Selection, selectors []string, ok func(string) bool) string {
	for _, sel := range selectors {
		s := card.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if text := extract.CleanText(s.Text()); ok(text) {
			return text
		}
	}
	return ""
}
