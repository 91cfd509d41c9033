package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WineUpdate refreshes a stored wine that reappeared in a scrape. Only the
// scrape-owned fields change; curated fields such as the name are kept.
type WineUpdate struct {
	WineID       int64               `json:"wine_id"`
	Name         string              `json:"name"` // stored name, for logging
	OldPrice     decimal.NullDecimal `json:"old_price"`
	NewPrice     decimal.NullDecimal `json:"new_price"`
	PriceChanged bool                `json:"price_changed"`
	ProductURL   string              `json:"product_url,omitempty"`
	WasAvailable bool                `json:"was_available"`
	ReviewFlags  []string            `json:"review_flags,omitempty"`
}

// ChangeSet is the outcome of reconciling one scrape against the stored
// wines of a winery. It is applied in a single transaction.
type ChangeSet struct {
	WineryID int64        `json:"winery_id"`
	SeenAt   time.Time    `json:"seen_at"`
	Inserts  []Wine       `json:"inserts"`
	Updates  []WineUpdate `json:"updates"`
	Retired  []Wine       `json:"retired"`
	// Flagged counts scraped records that triage marked for review.
	Flagged int `json:"flagged"`
}

// PriceChanges returns the number of updates that carry a new price.
func (c *ChangeSet) PriceChanges() int {
	n := 0
	for _, u := range c.Updates {
		if u.PriceChanged {
			n++
		}
	}
	return n
}

// Empty reports whether applying the set would only refresh timestamps.
func (c *ChangeSet) Empty() bool {
	if len(c.Inserts) > 0 || len(c.Retired) > 0 {
		return false
	}
	for _, u := range c.Updates {
		if u.PriceChanged || !u.WasAvailable {
			return false
		}
	}
	return true
}
