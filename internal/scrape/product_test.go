package scrape

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/winery-catalog/internal/extract"
	"github.com/sells-group/winery-catalog/internal/rules"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func genericParser() *productParser {
	ex := extract.New(rules.Default())
	return newProductParser(ex, ex.Rules().ProfileFor("https://shop.example.com/"))
}

func TestProductParser_Fields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		html    string
		want    string
		variety string
		vintage string
		price   string
	}{
		{
			name:    "woo title with year in url",
			url:     "https://shop.example.com/product/shiraz-2021/",
			html:    `<h1 class="product_title">Shiraz 2021</h1><p class="price">$35.00</p>`,
			want:    "Shiraz",
			variety: "Shiraz",
			vintage: "2021",
			price:   "35",
		},
		{
			name: "details table",
			url:  "https://shop.example.com/product/estate-riesling",
			html: `<h1>Estate Riesling</h1>
				<table><tr><td>Vintage</td><td>2023</td></tr><tr><td>Variety</td><td>Riesling</td></tr></table>
				<span class="price">$28</span>`,
			want:    "Estate Riesling",
			variety: "Riesling",
			vintage: "2023",
			price:   "28",
		},
		{
			name: "label adjacent values",
			url:  "https://shop.example.com/product/the-patriarch",
			html: `<h1>The Patriarch</h1>
				<div><strong>Vintage:</strong><span>2018</span></div>
				<div><strong>Varietal:</strong><span>Cabernet Sauvignon</span></div>
				<div class="price">Item Price$37.00750ml</div>`,
			want:    "The Patriarch",
			variety: "Cabernet Sauvignon",
			vintage: "2018",
			price:   "37",
		},
		{
			name: "kind paragraph",
			url:  "https://shop.example.com/product/old-block",
			html: `<h1>Old Block</h1><p class="kind">2020 Merlot</p>
				<span class="woocommerce-Price-amount">$45.50</span>`,
			want:    "Old Block",
			variety: "Merlot",
			vintage: "2020",
			price:   "45.5",
		},
		{
			name: "category text",
			url:  "https://shop.example.com/product/hill-block",
			html: `<h1>Hill Block Grenache</h1><p>Category: 2017 Reds</p>
				<p class="price">$30</p>`,
			want:    "Hill Block Grenache",
			variety: "Grenache",
			vintage: "2017",
			price:   "30",
		},
		{
			name: "url year outside window falls through to name",
			url:  "https://shop.example.com/product/1985-tawny",
			html: `<h1>Tawny NV</h1><p class="price">$40</p>`,
			want:    "Tawny",
			variety: "",
			vintage: "NV",
			price:   "40",
		},
		{
			name: "short year in name",
			url:  "https://shop.example.com/product/tempranillo",
			html: `<h1>Tempranillo 23</h1><p class="price">$26</p>`,
			want:    "Tempranillo",
			variety: "Tempranillo",
			vintage: "2023",
			price:   "26",
		},
		{
			name: "subtitle variety",
			url:  "https://shop.example.com/product/old-vine",
			html: `<h1>Old Vine Reserve</h1><p class="subtitle">Grenache Shiraz Mourvedre</p>
				<p class="price">$55</p>`,
			want:    "Old Vine Reserve",
			variety: "Shiraz",
			vintage: "",
			price:   "55",
		},
		{
			name: "heading with nested div",
			url:  "https://shop.example.com/product/pinot",
			html: `<h1 class="product_title"><div>Pinot Noir 2022</div><small>750ml</small></h1>
				<span>From $48.00</span>`,
			want:    "Pinot Noir",
			variety: "Pinot Noir",
			vintage: "2022",
			price:   "48",
		},
		{
			name: "trivial heading skipped",
			url:  "https://shop.example.com/product/bubbles",
			html: `<h1>NV</h1><h1>Blanc de Blanc NV</h1><p class="price">$60</p>`,
			want:    "Blanc de Blanc",
			variety: "Blanc de Blanc",
			vintage: "NV",
			price:   "60",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := genericParser()
			rec, ok := p.parse(mustDoc(t, "<html><body>"+tt.html+"</body></html>"), tt.url, 7)
			require.True(t, ok)
			assert.Equal(t, int64(7), rec.WineryID)
			assert.Equal(t, tt.want, rec.Name)
			assert.Equal(t, tt.variety, rec.Variety)
			assert.Equal(t, tt.vintage, rec.Vintage)
			assert.Equal(t, tt.url, rec.ProductURL)
			require.True(t, rec.Price.Valid)
			assert.True(t, decimal.RequireFromString(tt.price).Equal(rec.Price.Decimal), "price %s", rec.Price.Decimal)
		})
	}
}

func TestProductParser_NoName(t *testing.T) {
	t.Parallel()
	p := genericParser()

	_, ok := p.parse(mustDoc(t, `<html><body><p class="price">$20</p></body></html>`), "https://shop.example.com/product/x", 1)
	assert.False(t, ok)

	_, ok = p.parse(mustDoc(t, `<html><body><h1>Cart</h1></body></html>`), "https://shop.example.com/cart", 1)
	assert.False(t, ok)
}

func TestProductParser_MissingPrice(t *testing.T) {
	t.Parallel()
	p := genericParser()

	rec, ok := p.parse(mustDoc(t, `<html><body><h1>Chardonnay 2022</h1>
		<p class="price">Price on request</p></body></html>`), "https://shop.example.com/product/chardonnay", 1)
	require.True(t, ok)
	assert.False(t, rec.Price.Valid)
	assert.Error(t, extract.Validate(rec))
}

func TestProductParser_Description(t *testing.T) {
	t.Parallel()
	p := genericParser()

	rec, ok := p.parse(mustDoc(t, `<html><body><h1>Viognier 2023</h1><p class="price">$29</p>
		<div class="description">We ship our wines Australia wide.</div>
		<div class="product-description">Apricot and honeysuckle with a  textural   finish.</div>
		</body></html>`), "https://shop.example.com/product/viognier", 1)
	require.True(t, ok)
	assert.Equal(t, "Apricot and honeysuckle with a textural finish.", rec.Description)
}

func TestProductParser_ShortDescriptionRejected(t *testing.T) {
	t.Parallel()
	p := genericParser()

	rec, ok := p.parse(mustDoc(t, `<html><body><h1>Fiano 2024</h1><p class="price">$27</p>
		<div class="description">Crisp white.</div></body></html>`), "https://shop.example.com/product/fiano", 1)
	require.True(t, ok)
	assert.Empty(t, rec.Description)
}

func TestProductParser_SiteOverride(t *testing.T) {
	t.Parallel()
	ex := extract.New(rules.Default())
	shop := "https://www.bartonestate.com.au/wines/"
	p := newProductParser(ex, ex.Rules().ProfileFor(shop))

	html := `<html><body><h1>Marsanne</h1>
		<div class="specs"><span class="spec">Vintage</span><span>2024</span>
		<span class="spec">Variety</span><span>Marsanne</span></div>
		<p class="price">$32.00</p></body></html>`
	rec, ok := p.parse(mustDoc(t, html), "https://www.bartonestate.com.au/wine/marsanne/52969/", 3)
	require.True(t, ok)
	assert.Equal(t, "2024", rec.Vintage)
	assert.Equal(t, "Marsanne", rec.Variety)
	assert.Equal(t, "Marsanne", rec.Name)
}

func TestPairedValue(t *testing.T) {
	t.Parallel()
	doc := mustDoc(t, `<html><body><table>
		<tr><td>Region</td><td>Canberra District</td></tr>
		<tr><td>Vintage</td><td></td></tr>
		<tr><td>Vintage</td><td>2019</td></tr>
		</table></body></html>`)

	assert.Equal(t, "2019", pairedValue(doc, "td", "Vintage"))
	assert.Equal(t, "Canberra District", pairedValue(doc, "td", "Region"))
	assert.Empty(t, pairedValue(doc, "td", "Alcohol"))
}

func TestOwnText(t *testing.T) {
	t.Parallel()
	doc := mustDoc(t, `<html><body><p id="x">Vintage <b>2019</b> release</p></body></html>`)
	assert.Equal(t, "Vintage  release", ownText(doc.Find("#x")))
}
