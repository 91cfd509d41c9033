package model

import "time"

// Winery is a source site whose shop is scraped into the catalog.
type Winery struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Slug          string     `json:"slug"`
	ShopURL       string     `json:"shop_url"`
	IsActive      bool       `json:"is_active"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
