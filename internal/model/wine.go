package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// NonVintage is the vintage sentinel for wines blended across years.
const NonVintage = "NV"

// WineStatus is the review state of a catalog wine.
type WineStatus string

const (
	WineStatusPending  WineStatus = "pending"
	WineStatusLive     WineStatus = "live"
	WineStatusArchived WineStatus = "archived"
)

// AllWineStatuses returns the three review states in workflow order.
func AllWineStatuses() []WineStatus {
	return []WineStatus{WineStatusPending, WineStatusLive, WineStatusArchived}
}

// Valid reports whether s is one of the known statuses.
func (s WineStatus) Valid() bool {
	switch s {
	case WineStatusPending, WineStatusLive, WineStatusArchived:
		return true
	}
	return false
}

// ParseWineStatus converts user input into a WineStatus.
func ParseWineStatus(s string) (WineStatus, error) {
	st := WineStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", eris.Errorf("model: status must be pending, live or archived, got %q", s)
	}
	return st, nil
}

// RawWine is a single record produced by scraping one product. It is not
// persisted as-is; reconciliation turns it into a Wine.
type RawWine struct {
	WineryID    int64               `json:"winery_id"`
	Name        string              `json:"name"`
	Variety     string              `json:"variety,omitempty"`
	Vintage     string              `json:"vintage,omitempty"`
	Price       decimal.NullDecimal `json:"price"`
	Description string              `json:"description,omitempty"`
	ProductURL  string              `json:"product_url,omitempty"`
}

// Wine is a persisted catalog entry.
type Wine struct {
	ID          int64               `json:"id"`
	WineryID    int64               `json:"winery_id"`
	Name        string              `json:"name"`
	Variety     string              `json:"variety,omitempty"`
	Vintage     string              `json:"vintage,omitempty"`
	Price       decimal.NullDecimal `json:"price"`
	Description string              `json:"description,omitempty"`
	ProductURL  string              `json:"product_url,omitempty"`
	Status      WineStatus          `json:"status"`
	IsAvailable bool                `json:"is_available"`
	ReviewFlags []string            `json:"review_flags,omitempty"`
	FirstSeenAt time.Time           `json:"first_seen_at"`
	LastSeenAt  time.Time           `json:"last_seen_at"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// IsPublic reports whether the wine may be shown in the public catalog.
func (w *Wine) IsPublic() bool {
	return w.Status == WineStatusLive && w.IsAvailable
}

// NewWineFromRaw builds an unsaved catalog wine from a scraped record.
func NewWineFromRaw(r RawWine, status WineStatus, seenAt time.Time) Wine {
	return Wine{
		WineryID:    r.WineryID,
		Name:        r.Name,
		Variety:     r.Variety,
		Vintage:     r.Vintage,
		Price:       r.Price,
		Description: r.Description,
		ProductURL:  r.ProductURL,
		Status:      status,
		IsAvailable: true,
		FirstSeenAt: seenAt,
		LastSeenAt:  seenAt,
		CreatedAt:   seenAt,
		UpdatedAt:   seenAt,
	}
}

// NormalizeName returns the reconciliation match key for a wine name:
// lowercased with runs of whitespace collapsed to one space.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// WineFilter narrows catalog and admin wine listings. Zero values mean
// "no filter".
type WineFilter struct {
	Status        WineStatus          `json:"status,omitempty"`
	AvailableOnly bool                `json:"available_only,omitempty"`
	WineryID      int64               `json:"winery_id,omitempty"`
	Variety       string              `json:"variety,omitempty"` // case-insensitive substring
	Vintage       string              `json:"vintage,omitempty"` // exact
	Search        string              `json:"search,omitempty"`  // name substring
	MinPrice      decimal.NullDecimal `json:"min_price"`
	MaxPrice      decimal.NullDecimal `json:"max_price"`
	NewestFirst   bool                `json:"newest_first,omitempty"`
	Limit         int                 `json:"limit,omitempty"`
	Offset        int                 `json:"offset,omitempty"`
}

// PublicFilter returns f restricted to what the public catalog may show.
func PublicFilter(f WineFilter) WineFilter {
	f.Status = WineStatusLive
	f.AvailableOnly = true
	return f
}

// Count is a grouped aggregate row (variety, vintage or status).
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}
