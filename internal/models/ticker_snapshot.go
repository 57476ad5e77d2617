package models

import "time"

// TickerSnapshot holds the latest known market state for one symbol. The table
// is the durable universe snapshot: one row per symbol, overwritten wholesale
// on every sync, read directly by dashboard queries without re-invoking any
// provider. Numeric fields default to zero when the provider omits them.
type TickerSnapshot struct {
	Symbol    string    `gorm:"primaryKey;size:32" json:"symbol"`
	Name      string    `gorm:"size:128" json:"name"`
	PriceUSD  float64   `gorm:"column:price_usd" json:"price_usd"`
	MarketCap float64   `gorm:"column:market_cap" json:"market_cap"`
	Rank      int       `gorm:"index" json:"rank"`
	Volume24h float64   `gorm:"column:volume_24h" json:"volume_24h"`
	Change24h float64   `gorm:"column:change_24h" json:"change_24h"`
	Source    string    `gorm:"size:32" json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}
