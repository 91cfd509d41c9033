package rules

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// defaultVarieties is the catalog in priority order. Earlier entries win
// when a text contains several, so longer or more specific names sit ahead
// of the entries they contain.
var defaultVarieties = []Variety{
	{Match: "shiraz"},
	{Match: "syrah"},
	{Match: "riesling"},
	{Match: "chardonnay"},
	{Match: "pinot noir"},
	{Match: "cabernet sauvignon"},
	{Match: "merlot"},
	{Match: "tempranillo"},
	{Match: "viognier"},
	{Match: "sangiovese"},
	{Match: "pinot gris"},
	{Match: "pinot grigio"},
	{Match: "sauvignon blanc"},
	{Match: "sauv blanc", Canonical: "Sauvignon Blanc"},
	{Match: "savvy b", Canonical: "Sauvignon Blanc"},
	{Match: "sav blanc", Canonical: "Sauvignon Blanc"},
	{Match: "semillon"},
	{Match: "gewurztraminer", Canonical: "Gewürztraminer"},
	{Match: "cabernet franc"},
	{Match: "malbec"},
	{Match: "grenache"},
	{Match: "mourvedre", Canonical: "Mourvèdre"},
	{Match: "marsanne"},
	{Match: "roussanne"},
	{Match: "vermentino"},
	{Match: "fiano"},
	{Match: "arneis"},
	{Match: "nebbiolo"},
	{Match: "montepulciano"},
	{Match: "barbera"},
	{Match: "zinfandel"},
	{Match: "petit verdot"},
	{Match: "rose", Canonical: "Rosé"},
	{Match: "rosé", Canonical: "Rosé"},
	{Match: "sparkling"},
	{Match: "blanc de blanc", Canonical: "Blanc de Blanc"},
	{Match: "blanc de noirs", Canonical: "Blanc de Noirs"},
	{Match: "prosecco"},
	{Match: "methode traditionnelle", Canonical: "Méthode Traditionnelle"},
	{Match: "champagne"},
	{Match: "moscato"},
	{Match: "gruner veltliner", Canonical: "Grüner Veltliner"},
	{Match: "grüner veltliner", Canonical: "Grüner Veltliner"},
	{Match: "chenin blanc"},
	{Match: "verdelho"},
	{Match: "savagnin"},
	{Match: "petit manseng"},
	{Match: "albarino", Canonical: "Albariño"},
	{Match: "albariño", Canonical: "Albariño"},
	{Match: "gamay"},
	{Match: "nero d'avola", Canonical: "Nero d'Avola"},
	{Match: "aglianico"},
	{Match: "graciano"},
	{Match: "tannat"},
	{Match: "carmenere", Canonical: "Carménère"},
	{Match: "carménère", Canonical: "Carménère"},
	{Match: "touriga nacional"},
	{Match: "primitivo"},
	{Match: "dolcetto"},
	{Match: "cortese"},
	{Match: "verdicchio"},
}

// Default returns the built-in rules. Each call returns a fresh copy.
func Default() *Rules {
	r := &Rules{
		Varieties: canonicalize(defaultVarieties),
		Series: []string{
			"First Vines", "Reserve", "Premium", "Estate",
			"The Gravel Block", "Close Planted", "35th Parallel",
		},
		// More specific path fragments first, generic containers last.
		LinkSelectors: []string{
			`a[href*="/wine/"]`,
			`a[href*="/product"]`,
			`a[href*="/products"]`,
			`.product-card a`,
			`.product-item a`,
			`article a`,
		},
		NameSelectors: []string{
			"h1.product_title",
			"h1",
			".product-title",
			"h2",
		},
		PriceSelectors: []string{
			".price",
			`[class*="price"]`,
			`span:contains("$")`,
			".amount",
		},
		DescriptionSelectors: []string{
			".description",
			".product-description",
			`[itemprop="description"]`,
			".wine-description",
		},
		SubtitleSelectors: []string{".subtitle", ".wine-subtitle", "h2", "h3"},
		NonWineNames:      []string{"cart", "product", "shop", "home", "your cart is empty"},
		DescriptionSkipPhrases: []string{
			"we ship our wines",
			"shipping",
			"delivery",
			"please make up your order",
			"bottles to ensure",
			"purchase limits",
			"terms and conditions",
		},
		ExcludePaths: []string{
			"/cart/*",
			"/checkout/*",
			"/my-account/*",
			"/account/*",
			"/login/*",
			"/wishlist/*",
			"/page/*",
			"/*/page/*",
			"/product-category/*",
			"/category/*",
			"/tag/*",
			"/product-tag/*",
		},
		VintageChain: []string{
			VintageURL, VintageSpecLabel, VintageKind,
			VintageDetailsTable, VintageCategory, VintageName,
		},
		VarietyChain: []string{
			VarietyLabel, VarietyKind, VarietyDetailsTable,
			VarietyName, VarietySubtitle,
		},
		MinDescriptionLen: 20,
		Windows: Windows{
			URL:   Window{Min: 2010, Max: 2030},
			Label: Window{Min: 2010, Max: 2030, AllowNV: true, AllowShort: true},
			Loose: Window{Min: 1900, Max: 2030, AllowNV: true, AllowShort: true},
			Name:  Window{Min: 2010, Max: 2030, AllowNV: true, AllowShort: true},
		},
		Listing: Listing{
			CardSelectors: []string{
				".product-card", ".product-item", ".product",
				".wine-item", `[class*="product"]`, "article",
			},
			NameSelectors:        []string{"h2", "h3", "h4", ".product-title", ".title", `[class*="title"]`, "a"},
			PriceSelectors:       []string{".price", `[class*="price"]`, "span[data-price]", ".amount"},
			DescriptionSelectors: []string{".description", ".product-description", "p"},
			MinCards:             3,
			MaxCards:             50,
			MinDescriptionLen:    10,
		},
		Sites: []SiteRule{
			{
				// Product ids in the URL read as years (52969 -> 1969); the
				// vintage sits in <span class="spec">Vintage</span><span>2024</span>.
				Name:  "barton-estate",
				Hosts: []string{"bartonestate.com.au"},
				VintageChain: []string{
					VintageSpecLabel, VintageKind, VintageDetailsTable,
					VintageSpecSpan, VintageCategory, VintageName,
				},
				VarietyChain: []string{
					VarietyLabel, VarietyKind, VarietyDetailsTable,
					VarietySpecSpan, VarietyName, VarietySubtitle,
				},
			},
			{
				Name:          "sassafras",
				Hosts:         []string{"sassafraswines.com.au"},
				LinkSelectors: []string{`a[href*="/the-wine/"]`},
			},
			{
				Name:          "gallagher",
				Hosts:         []string{"gallagherwines.com.au"},
				LinkSelectors: []string{`a[href*="index.php?id="]`},
			},
		},
	}
	return r
}

// canonicalize copies vs, filling empty canonical names with the
// title-cased match text.
func canonicalize(vs []Variety) []Variety {
	// Casers keep state and are not safe for concurrent use.
	title := cases.Title(language.English)
	out := make([]Variety, len(vs))
	for i, v := range vs {
		if v.Canonical == "" {
			v.Canonical = title.String(v.Match)
		}
		out[i] = v
	}
	return out
}
