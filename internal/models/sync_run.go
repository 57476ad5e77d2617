package models

import "time"

// SyncRun is the audit record of one snapshot sync execution: which job ran,
// how many provider items it processed, how many rows it upserted, and how
// many batches failed. Partial failure is expected and recorded, not thrown.
type SyncRun struct {
	BaseModel
	Job        string        `gorm:"index;size:64" json:"job"`
	Processed  int           `json:"processed"`
	Upserted   int           `json:"upserted"`
	Errors     int           `json:"errors"`
	HasMore    bool          `json:"has_more"`
	NextOffset int           `json:"next_offset"`
	Duration   time.Duration `json:"duration"`
}
