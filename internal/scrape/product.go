package scrape

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/sells-group/winery-catalog/internal/extract"
	"github.com/sells-group/winery-catalog/internal/model"
	"github.com/sells-group/winery-catalog/internal/rules"
)

// productParser extracts one wine from a rendered product page.
type productParser struct {
	ex      *extract.Extractor
	rules   *rules.Rules
	profile rules.Profile
}

func newProductParser(ex *extract.Extractor, profile rules.Profile) *productParser {
	return &productParser{ex: ex, rules: ex.Rules(), profile: profile}
}

// parse returns the cleaned record for a product page, or false when the
// page holds no recognisable wine. Validation happens separately.
func (p *productParser) parse(doc *goquery.Document, pageURL string, wineryID int64) (model.RawWine, bool) {
	name := p.name(doc)
	if name == "" || p.ex.IsNonWineName(name) {
		return model.RawWine{}, false
	}

	vintage := p.vintage(doc, pageURL, name)
	variety := p.variety(doc, name)

	return model.RawWine{
		WineryID:    wineryID,
		Name:        p.ex.NormalizeName(name, variety, vintage),
		Variety:     variety,
		Vintage:     vintage,
		Price:       p.price(doc),
		Description: p.description(doc),
		ProductURL:  pageURL,
	}, true
}

// name returns the first heading longer than two characters. Headings that
// wrap their text in a div (some themes nest the title) use the div text.
func (p *productParser) name(doc *goquery.Document) string {
	for _, sel := range p.rules.NameSelectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := headingText(s)
			if utf8.RuneCountInString(text) > 2 {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func headingText(s *goquery.Selection) string {
	if div := s.Find("div").First(); div.Length() > 0 {
		if text := extract.CleanText(div.Text()); text != "" {
			return text
		}
	}
	return extract.CleanText(s.Text())
}

func (p *productParser) vintage(doc *goquery.Document, pageURL, name string) string {
	w := p.rules.Windows
	for _, strategy := range p.profile.VintageChain {
		var v string
		switch strategy {
		case rules.VintageURL:
			// Path only: hosts and query strings carry ids, not vintages.
			if u, err := url.Parse(pageURL); err == nil {
				if m, ok := extract.MatchVintage(u.Path); ok && !m.Short && m.Within(w.URL) {
					v = m.Value
				}
			}
		case rules.VintageSpecLabel:
			labelledValues(doc, "Vintage", func(text string) bool {
				v = extract.VintageWithin(text, w.Label)
				return v != ""
			})
		case rules.VintageKind:
			v = extract.VintageWithin(firstText(doc, "p.kind"), w.Loose)
		case rules.VintageDetailsTable:
			v = extract.VintageWithin(pairedValue(doc, "td", "Vintage"), w.Loose)
		case rules.VintageSpecSpan:
			v = extract.VintageWithin(pairedValue(doc, "span.spec", "Vintage"), w.Loose)
		case rules.VintageCategory:
			v = extract.VintageWithin(textContaining(doc, "Category:"), w.Loose)
		case rules.VintageName:
			v = extract.VintageWithin(name, w.Name)
		}
		if v != "" {
			return v
		}
	}
	return ""
}

func (p *productParser) variety(doc *goquery.Document, name string) string {
	for _, strategy := range p.profile.VarietyChain {
		var v string
		switch strategy {
		case rules.VarietyLabel:
			labelledValues(doc, "Varietal", func(text string) bool {
				v = p.ex.Variety(text)
				return v != ""
			})
		case rules.VarietyKind:
			v = p.ex.Variety(firstText(doc, "p.kind"))
		case rules.VarietyDetailsTable:
			v = p.ex.Variety(pairedValue(doc, "td", "Variety"))
		case rules.VarietySpecSpan:
			v = p.ex.Variety(pairedValue(doc, "span.spec", "Variety"))
		case rules.VarietyName:
			v = p.ex.Variety(name)
		case rules.VarietySubtitle:
			for _, sel := range p.rules.SubtitleSelectors {
				if v = p.ex.Variety(firstText(doc, sel)); v != "" {
					break
				}
			}
		}
		if v != "" {
			return v
		}
	}
	return ""
}

// price returns the first price any selector yields.
func (p *productParser) price(doc *goquery.Document) decimal.NullDecimal {
	for _, sel := range p.rules.PriceSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if price := extract.ExtractPrice(extract.CleanText(s.Text())); price.Valid {
			return price
		}
	}
	return decimal.NullDecimal{}
}

// description returns the first selector text that is long enough and not
// shipping or policy boilerplate.
func (p *productParser) description(doc *goquery.Document) string {
	for _, sel := range p.rules.DescriptionSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		text := extract.CleanText(s.Text())
		if p.ex.AcceptDescription(text, p.rules.MinDescriptionLen) {
			return text
		}
	}
	return ""
}

// firstText returns the cleaned text of the first element matching sel.
func firstText(doc *goquery.Document, sel string) string {
	return extract.CleanText(doc.Find(sel).First().Text())
}

// pairedValue finds the element matching sel whose text is exactly label
// and returns the text of its next sibling of the same tag, as in
// <td>Vintage</td><td>2019</td> or <span class="spec">Vintage</span><span>2024</span>.
func pairedValue(doc *goquery.Document, sel, label string) string {
	var value string
	doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if extract.CleanText(s.Text()) != label {
			return true
		}
		next := s.NextFiltered(goquery.NodeName(s))
		if next.Length() == 0 {
			return true
		}
		value = extract.CleanText(next.Text())
		return value == ""
	})
	return value
}

// labelledValues walks elements whose own text mentions label and passes
// the text of each one's next sibling element to fn until fn returns true.
func labelledValues(doc *goquery.Document, label string, fn func(string) bool) {
	doc.Find("body *").Not("script, style, noscript").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(ownText(s), label) {
			return true
		}
		next := s.Next()
		if next.Length() == 0 {
			return true
		}
		return !fn(extract.CleanText(next.Text()))
	})
}

// textContaining returns the first text node containing needle.
func textContaining(doc *goquery.Document, needle string) string {
	var found string
	doc.Find("body *").Not("script, style, noscript").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := ownText(s); strings.Contains(text, needle) {
			found = extract.CleanText(text)
			return false
		}
		return true
	})
	return found
}

// ownText concatenates the element's direct text nodes, ignoring children.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
		}
	})
	return b.String()
}
