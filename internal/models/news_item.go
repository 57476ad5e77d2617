package models

import (
	"time"

	"gorm.io/datatypes"
)

// NewsItem is one normalized headline from the news provider. ExternalID is
// the provider's identifier and carries the uniqueness constraint, so
// re-syncing the same page is idempotent.
type NewsItem struct {
	BaseModel
	ExternalID  string         `gorm:"uniqueIndex;size:64" json:"external_id"`
	Title       string         `gorm:"size:512" json:"title"`
	URL         string         `gorm:"size:1024" json:"url"`
	Source      string         `gorm:"size:128" json:"source"`
	Currencies  datatypes.JSON `gorm:"type:json" json:"currencies"`
	PublishedAt time.Time      `gorm:"index" json:"published_at"`
}
