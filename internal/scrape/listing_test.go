package scrape

import (
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/winery-catalog/internal/extract"
	"github.com/sells-group/winery-catalog/internal/rules"
)

const listingFixture = `<html><body>
<div class="product-card">
  <h3>2021 Shiraz Viognier</h3><span class="price">$42.00</span>
  <a href="/wines/shiraz-viognier?ref=grid">View</a>
  <p>Perfumed and silky with a bright red fruit core.</p>
</div>
<div class="product-card">
  <h3>Riesling 2023</h3><span class="price">$30</span>
  <a href="/wines/riesling">View</a>
</div>
<div class="product-card">
  <h3>Merchandise Cap</h3><span class="price">Sold out</span>
  <a href="/wines/cap">View</a>
</div>
<div class="product-card">
  <h3>Cart</h3><span class="price">$0</span>
</div>
</body></html>`

func TestParseListingCards(t *testing.T) {
	t.Parallel()
	ex := extract.New(rules.Default())
	base, _ := url.Parse("https://winery.com.au/wines")

	recs, sel := parseListingCards(ex, mustDoc(t, listingFixture), base, 5)
	assert.Equal(t, ".product-card", sel)
	require.Len(t, recs, 3)

	assert.Equal(t, "2021", recs[0].Vintage)
	assert.Equal(t, "Shiraz", recs[0].Variety)
	assert.Equal(t, "Viognier", recs[0].Name)
	assert.True(t, decimal.NewFromInt(42).Equal(recs[0].Price.Decimal))
	assert.Equal(t, "https://winery.com.au/wines/shiraz-viognier", recs[0].ProductURL)
	assert.Equal(t, "Perfumed and silky with a bright red fruit core.", recs[0].Description)
	assert.Equal(t, int64(5), recs[0].WineryID)

	assert.Equal(t, "Riesling", recs[1].Name)
	assert.Equal(t, "2023", recs[1].Vintage)
	assert.Empty(t, recs[1].Description)

	assert.Equal(t, "Merchandise Cap", recs[2].Name)
	assert.False(t, recs[2].Price.Valid)
	assert.Error(t, extract.Validate(recs[2]))
}

func TestParseListingCards_TooFewCards(t *testing.T) {
	t.Parallel()
	ex := extract.New(rules.Default())
	base, _ := url.Parse("https://winery.com.au/wines")
	doc := mustDoc(t, `<html><body>
		<div class="product-card"><h3>Shiraz 2021</h3><span class="price">$40</span></div>
		<div class="product-card"><h3>Merlot 2020</h3><span class="price">$35</span></div>
	</body></html>`)

	recs, sel := parseListingCards(ex, doc, base, 5)
	assert.Empty(t, recs)
	assert.Empty(t, sel)
}

func TestParseListingCards_MaxCards(t *testing.T) {
	t.Parallel()
	ex := extract.New(rules.Default())
	base, _ := url.Parse("https://winery.com.au/wines")

	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, `<div class="wine-item"><h2>Cuvee Number %d</h2><span class="price">$%d</span></div>`, i, 20+i)
	}
	b.WriteString("</body></html>")

	recs, sel := parseListingCards(ex, mustDoc(t, b.String()), base, 5)
	assert.Equal(t, ".wine-item", sel)
	assert.Len(t, recs, 50)
}
