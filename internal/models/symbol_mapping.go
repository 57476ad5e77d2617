package models

import "time"

// SymbolMapping pins a canonical symbol to the identifiers each downstream
// consumer needs: the charting widget symbol, the price provider's coin id,
// and the social provider's topic. Curated by hand for symbols the
// constructed fallback gets wrong.
type SymbolMapping struct {
	Symbol      string    `gorm:"primaryKey;size:32" json:"symbol"`
	ChartSymbol string    `gorm:"size:64" json:"chart_symbol"`
	CoinID      string    `gorm:"size:64" json:"coin_id"`
	SocialTopic string    `gorm:"size:64" json:"social_topic"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// SymbolAlias maps a known alternate spelling to its canonical symbol.
type SymbolAlias struct {
	Alias     string    `gorm:"primaryKey;size:32" json:"alias"`
	Symbol    string    `gorm:"index;size:32" json:"symbol"`
	CreatedAt time.Time `json:"-"`
}
