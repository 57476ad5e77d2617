package models

import "time"

// SentimentSnapshot holds the latest social-sentiment metrics for one symbol.
// Overwritten on every sentiment sync; one row per symbol.
type SentimentSnapshot struct {
	Symbol       string    `gorm:"primaryKey;size:32" json:"symbol"`
	GalaxyScore  float64   `gorm:"column:galaxy_score" json:"galaxy_score"`
	AltRank      int       `gorm:"column:alt_rank" json:"alt_rank"`
	SocialVolume float64   `gorm:"column:social_volume" json:"social_volume"`
	Sentiment    float64   `json:"sentiment"`
	Source       string    `gorm:"size:32" json:"source"`
	FetchedAt    time.Time `json:"fetched_at"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"updated_at"`
}
