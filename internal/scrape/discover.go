package scrape

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CanonicalURL resolves href against base and strips the query string and
// fragment. Only an id= parameter survives, as it carries the product
// identity on index.php?id=12 shops. It returns false for
// links that cannot be product pages.
func CanonicalURL(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	target, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return "", false
	}
	target.Fragment = ""
	target.RawFragment = ""
	if q := target.Query(); q.Has("id") {
		target.RawQuery = url.Values{"id": q["id"]}.Encode()
	} else {
		target.RawQuery = ""
	}
	target.ForceQuery = false
	return target.String(), true
}

// DiscoverProductURLs applies the link selectors in priority order and
// returns the canonical URLs found by the first selector that yields any.
// Results from different selectors are never merged. Excluded paths and
// the listing page itself are skipped.
func DiscoverProductURLs(doc *goquery.Document, base *url.URL, selectors []string, exclude *PathMatcher) ([]string, string) {
	self, _ := CanonicalURL(base, base.String())

	for _, sel := range selectors {
		var urls []string
		seen := make(map[string]struct{})

		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok {
				return
			}
			u, ok := CanonicalURL(base, href)
			if !ok || u == self {
				return
			}
			if exclude != nil && exclude.IsExcluded(u) {
				return
			}
			if _, dup := seen[u]; dup {
				return
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		})

		if len(urls) > 0 {
			return urls, sel
		}
	}
	return nil, ""
}
