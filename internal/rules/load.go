package rules

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML rule file and overlays it on the built-in defaults.
// Non-empty lists in the file replace the default list; site rules replace
// the built-in rule of the same name and are otherwise appended. An empty
// path returns the defaults.
func Load(path string) (*Rules, error) {
	r := Default()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read %s", path)
	}

	var file Rules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "rules: parse %s", path)
	}

	r.overlay(&file)
	if err := r.Validate(); err != nil {
		return nil, eris.Wrapf(err, "rules: %s", path)
	}
	return r, nil
}

func (r *Rules) overlay(o *Rules) {
	if len(o.Varieties) > 0 {
		r.Varieties = canonicalize(o.Varieties)
	}
	overlayList(&r.Series, o.Series)
	overlayList(&r.LinkSelectors, o.LinkSelectors)
	overlayList(&r.NameSelectors, o.NameSelectors)
	overlayList(&r.PriceSelectors, o.PriceSelectors)
	overlayList(&r.DescriptionSelectors, o.DescriptionSelectors)
	overlayList(&r.SubtitleSelectors, o.SubtitleSelectors)
	overlayList(&r.NonWineNames, o.NonWineNames)
	overlayList(&r.DescriptionSkipPhrases, o.DescriptionSkipPhrases)
	overlayList(&r.ExcludePaths, o.ExcludePaths)
	overlayList(&r.VintageChain, o.VintageChain)
	overlayList(&r.VarietyChain, o.VarietyChain)
	if o.MinDescriptionLen > 0 {
		r.MinDescriptionLen = o.MinDescriptionLen
	}

	overlayWindow(&r.Windows.URL, o.Windows.URL)
	overlayWindow(&r.Windows.Label, o.Windows.Label)
	overlayWindow(&r.Windows.Loose, o.Windows.Loose)
	overlayWindow(&r.Windows.Name, o.Windows.Name)

	overlayList(&r.Listing.CardSelectors, o.Listing.CardSelectors)
	overlayList(&r.Listing.NameSelectors, o.Listing.NameSelectors)
	overlayList(&r.Listing.PriceSelectors, o.Listing.PriceSelectors)
	overlayList(&r.Listing.DescriptionSelectors, o.Listing.DescriptionSelectors)
	if o.Listing.MinCards > 0 {
		r.Listing.MinCards = o.Listing.MinCards
	}
	if o.Listing.MaxCards > 0 {
		r.Listing.MaxCards = o.Listing.MaxCards
	}
	if o.Listing.MinDescriptionLen > 0 {
		r.Listing.MinDescriptionLen = o.Listing.MinDescriptionLen
	}

	for _, s := range o.Sites {
		replaced := false
		for i := range r.Sites {
			if r.Sites[i].Name == s.Name {
				r.Sites[i] = s
				replaced = true
				break
			}
		}
		if !replaced {
			r.Sites = append(r.Sites, s)
		}
	}
}

func overlayList(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}

// overlayWindow replaces dst when the file sets an upper bound.
func overlayWindow(dst *Window, src Window) {
	if src.Max != 0 {
		*dst = src
	}
}
