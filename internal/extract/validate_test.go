package extract

import (
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/winery-catalog/internal/model"
)

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wine    model.RawWine
		wantErr error
	}{
		{"ok", model.RawWine{Name: "Reserve Shiraz", Price: price("35")}, nil},
		{"missing name", model.RawWine{Price: price("35")}, ErrMissingName},
		{"missing price", model.RawWine{Name: "Reserve Shiraz"}, ErrMissingPrice},
		{"below floor", model.RawWine{Name: "Cheap", Price: price("4.99")}, ErrPriceOutOfRange},
		{"at floor", model.RawWine{Name: "Cheap", Price: price("5.00")}, nil},
		{"at ceiling", model.RawWine{Name: "Rare", Price: price("10000.00")}, nil},
		{"above ceiling", model.RawWine{Name: "Rare", Price: price("10000.01")}, ErrPriceOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tt.wine)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, eris.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestTriage(t *testing.T) {
	t.Parallel()

	complete := model.RawWine{
		Name:        "Reserve Shiraz",
		Variety:     "Shiraz",
		Price:       price("35"),
		Description: "Dark plum and pepper.",
	}

	tests := []struct {
		name    string
		mutate  func(*model.RawWine)
		reasons []string
	}{
		{"clean", func(*model.RawWine) {}, nil},
		{"no description", func(w *model.RawWine) { w.Description = "" }, []string{ReasonMissingDescription}},
		{"no variety", func(w *model.RawWine) { w.Variety = "" }, []string{ReasonNoVariety}},
		{"short name", func(w *model.RawWine) { w.Name = "Red" }, []string{ReasonNameTooShort}},
		{"long name", func(w *model.RawWine) { w.Name = strings.Repeat("x", 201) }, []string{ReasonNameTooLong}},
		{"expensive", func(w *model.RawWine) { w.Price = price("500.01") }, []string{ReasonPriceHigh}},
		{"at warning ceiling", func(w *model.RawWine) { w.Price = price("500") }, nil},
		{"cheap", func(w *model.RawWine) { w.Price = price("4") }, []string{ReasonPriceLow}},
		{"no price", func(w *model.RawWine) { w.Price = decimal.NullDecimal{} }, []string{ReasonMissingPrice}},
		{"no name", func(w *model.RawWine) { w.Name = "" }, []string{ReasonMissingName, ReasonNameTooShort}},
		{"several", func(w *model.RawWine) {
			w.Variety = ""
			w.Description = ""
		}, []string{ReasonNoVariety, ReasonMissingDescription}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := complete
			tt.mutate(&w)
			flagged, reasons := Triage(w)
			assert.Equal(t, len(tt.reasons) > 0, flagged)
			assert.Equal(t, tt.reasons, reasons)
		})
	}
}

func TestTriage_DoesNotBlockValidRecord(t *testing.T) {
	w := model.RawWine{Name: "Shiraz", Price: price("750")}
	assert.NoError(t, Validate(w))
	flagged, reasons := Triage(w)
	assert.True(t, flagged)
	assert.Contains(t, reasons, ReasonPriceHigh)
}
