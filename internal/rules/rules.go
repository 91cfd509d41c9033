// Package rules holds the extraction configuration shared by every scrape:
// the grape variety catalog, series phrases, selector priority lists,
// vintage plausibility windows and the per-site override table. A Rules
// value is built once at startup and treated as read-only afterwards.
package rules

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// Vintage strategies, tried in chain order until one yields a value.
const (
	VintageURL          = "url"
	VintageSpecLabel    = "spec_label"
	VintageKind         = "kind"
	VintageDetailsTable = "details_table"
	VintageSpecSpan     = "spec_span"
	VintageCategory     = "category"
	VintageName         = "name"
)

// Variety strategies, tried in chain order until one yields a value.
const (
	VarietyLabel        = "varietal_label"
	VarietyKind         = "kind"
	VarietyDetailsTable = "details_table"
	VarietySpecSpan     = "spec_span"
	VarietyName         = "name"
	VarietySubtitle     = "subtitle"
)

// Scrape modes.
const (
	ModeProduct = "product" // discover product links, visit each page
	ModeListing = "listing" // read records straight off listing cards
)

var vintageStrategies = map[string]bool{
	VintageURL: true, VintageSpecLabel: true, VintageKind: true,
	VintageDetailsTable: true, VintageSpecSpan: true, VintageCategory: true,
	VintageName: true,
}

var varietyStrategies = map[string]bool{
	VarietyLabel: true, VarietyKind: true, VarietyDetailsTable: true,
	VarietySpecSpan: true, VarietyName: true, VarietySubtitle: true,
}

// Variety is one catalog entry. Match is the lowercase substring searched
// for; Canonical is the display name returned on a match.
type Variety struct {
	Match     string `yaml:"match"`
	Canonical string `yaml:"canonical"`
}

// Window bounds the vintages accepted from one source.
type Window struct {
	Min        int  `yaml:"min"`
	Max        int  `yaml:"max"`
	AllowNV    bool `yaml:"allow_nv"`
	AllowShort bool `yaml:"allow_short"` // accept 2-digit years like '23
}

// Contains reports whether year lies inside the window.
func (w Window) Contains(year int) bool {
	return year >= w.Min && year <= w.Max
}

// Windows groups the plausibility windows by how trustworthy the source is.
type Windows struct {
	URL   Window `yaml:"url"`   // URLs embed product ids that look like years
	Label Window `yaml:"label"` // "Vintage" label next to a value
	Loose Window `yaml:"loose"` // kind line, details table, spec span, category
	Name  Window `yaml:"name"`  // product title
}

// Listing configures card-based extraction for sites scraped in listing mode.
type Listing struct {
	CardSelectors        []string `yaml:"card_selectors"`
	NameSelectors        []string `yaml:"name_selectors"`
	PriceSelectors       []string `yaml:"price_selectors"`
	DescriptionSelectors []string `yaml:"description_selectors"`
	MinCards             int      `yaml:"min_cards"` // a card selector must match more than this
	MaxCards             int      `yaml:"max_cards"`
	MinDescriptionLen    int      `yaml:"min_description_len"`
}

// SiteRule overrides the generic pipeline for the sites it names.
type SiteRule struct {
	Name          string   `yaml:"name"`
	Hosts         []string `yaml:"hosts"`
	LinkSelectors []string `yaml:"link_selectors"` // tried before the generic list
	VintageChain  []string `yaml:"vintage_chain"`
	VarietyChain  []string `yaml:"variety_chain"`
	Mode          string   `yaml:"mode"`
}

// Rules is the complete extraction configuration.
type Rules struct {
	Varieties              []Variety  `yaml:"varieties"`
	Series                 []string   `yaml:"series"`
	LinkSelectors          []string   `yaml:"link_selectors"`
	NameSelectors          []string   `yaml:"name_selectors"`
	PriceSelectors         []string   `yaml:"price_selectors"`
	DescriptionSelectors   []string   `yaml:"description_selectors"`
	SubtitleSelectors      []string   `yaml:"subtitle_selectors"`
	NonWineNames           []string   `yaml:"non_wine_names"`
	DescriptionSkipPhrases []string   `yaml:"description_skip_phrases"`
	ExcludePaths           []string   `yaml:"exclude_paths"`
	VintageChain           []string   `yaml:"vintage_chain"`
	VarietyChain           []string   `yaml:"variety_chain"`
	MinDescriptionLen      int        `yaml:"min_description_len"`
	Windows                Windows    `yaml:"windows"`
	Listing                Listing    `yaml:"listing"`
	Sites                  []SiteRule `yaml:"sites"`
}

// Profile is the effective configuration for one winery, resolved once per
// scrape from the generic rules and any matching site override.
type Profile struct {
	Site          string
	LinkSelectors []string
	VintageChain  []string
	VarietyChain  []string
	Mode          string
}

// ProfileFor resolves the profile for a winery's shop URL.
func (r *Rules) ProfileFor(shopURL string) Profile {
	p := Profile{
		LinkSelectors: r.LinkSelectors,
		VintageChain:  r.VintageChain,
		VarietyChain:  r.VarietyChain,
		Mode:          ModeProduct,
	}

	site, ok := r.SiteFor(shopURL)
	if !ok {
		return p
	}
	p.Site = site.Name
	if len(site.LinkSelectors) > 0 {
		merged := make([]string, 0, len(site.LinkSelectors)+len(r.LinkSelectors))
		merged = append(merged, site.LinkSelectors...)
		merged = append(merged, r.LinkSelectors...)
		p.LinkSelectors = merged
	}
	if len(site.VintageChain) > 0 {
		p.VintageChain = site.VintageChain
	}
	if len(site.VarietyChain) > 0 {
		p.VarietyChain = site.VarietyChain
	}
	if site.Mode != "" {
		p.Mode = site.Mode
	}
	return p
}

// SiteFor returns the first site rule whose hosts cover rawURL.
func (r *Rules) SiteFor(rawURL string) (SiteRule, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return SiteRule{}, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, s := range r.Sites {
		for _, h := range s.Hosts {
			h = strings.TrimPrefix(strings.ToLower(h), "www.")
			if host == h || strings.HasSuffix(host, "."+h) {
				return s, true
			}
		}
	}
	return SiteRule{}, false
}

// Validate rejects configurations the extractors cannot run with.
func (r *Rules) Validate() error {
	if len(r.Varieties) == 0 {
		return eris.New("rules: variety catalog is empty")
	}
	for i, v := range r.Varieties {
		if strings.TrimSpace(v.Match) == "" {
			return eris.Errorf("rules: variety %d has no match text", i)
		}
		if v.Match != strings.ToLower(v.Match) {
			return eris.Errorf("rules: variety match %q must be lowercase", v.Match)
		}
	}
	if len(r.LinkSelectors) == 0 {
		return eris.New("rules: no link selectors")
	}
	if len(r.NameSelectors) == 0 {
		return eris.New("rules: no name selectors")
	}
	if len(r.PriceSelectors) == 0 {
		return eris.New("rules: no price selectors")
	}
	if err := validateChain("vintage", r.VintageChain, vintageStrategies); err != nil {
		return err
	}
	if err := validateChain("variety", r.VarietyChain, varietyStrategies); err != nil {
		return err
	}
	for name, w := range map[string]Window{
		"url": r.Windows.URL, "label": r.Windows.Label,
		"loose": r.Windows.Loose, "name": r.Windows.Name,
	} {
		if w.Min > w.Max {
			return eris.Errorf("rules: %s window min %d exceeds max %d", name, w.Min, w.Max)
		}
	}
	for _, s := range r.Sites {
		if s.Name == "" || len(s.Hosts) == 0 {
			return eris.Errorf("rules: site rule %q needs a name and at least one host", s.Name)
		}
		if err := validateChain(s.Name+" vintage", s.VintageChain, vintageStrategies); err != nil {
			return err
		}
		if err := validateChain(s.Name+" variety", s.VarietyChain, varietyStrategies); err != nil {
			return err
		}
		switch s.Mode {
		case "", ModeProduct, ModeListing:
		default:
			return eris.Errorf("rules: site %q has unknown mode %q", s.Name, s.Mode)
		}
	}
	return nil
}

func validateChain(field string, chain []string, known map[string]bool) error {
	for _, s := range chain {
		if !known[s] {
			return eris.Errorf("rules: unknown %s strategy %q", field, s)
		}
	}
	return nil
}
