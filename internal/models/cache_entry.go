package models

import (
	"time"

	"gorm.io/datatypes"
)

// CacheEntry is one row of the shared key-value cache table. Keys follow the
// "<provider>:<resource>:<version>" convention and there is at most one row
// per key (upsert by key). Entries past ExpiresAt are kept around so reads can
// fall back to stale data when a provider is rate limiting.
type CacheEntry struct {
	Key       string         `gorm:"primaryKey;size:256"`
	Value     datatypes.JSON `gorm:"type:json"`
	ExpiresAt time.Time      `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fresh reports whether the entry is still within its TTL at the given instant.
func (e CacheEntry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}
