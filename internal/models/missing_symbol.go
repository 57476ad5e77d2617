package models

import "time"

// MissingSymbol records a symbol that could not be resolved against the
// mapping or alias tables. Occurrences is bumped on every repeat miss so the
// most-requested gaps surface first for manual mapping.
type MissingSymbol struct {
	Symbol      string    `gorm:"primaryKey;size:32" json:"symbol"`
	Occurrences int64     `json:"occurrences"`
	LastSeenAt  time.Time `gorm:"index" json:"last_seen_at"`
	CreatedAt   time.Time `json:"-"`
}
