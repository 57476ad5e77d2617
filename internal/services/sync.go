package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tickerdeck/tickerdeck/internal/models"
	"github.com/tickerdeck/tickerdeck/pkg/logger"
	"github.com/tickerdeck/tickerdeck/pkg/metrics"
)

const (
	defaultBatchSize  = 500
	defaultPerPage    = 250
	defaultPageCap    = 10
	defaultCacheTTL   = 5 * time.Minute
	defaultBatchDelay = 100 * time.Millisecond
)

// SyncConfig tunes the snapshot sync loop shared by all sync services.
type SyncConfig struct {
	// BatchSize bounds the number of rows per upsert statement.
	BatchSize int
	// PerPage is the page size requested from paginated providers.
	PerPage int
	// PageCap bounds provider pages fetched in one invocation, so a single
	// run never exceeds the hosting time budget.
	PageCap int
	// InterBatchDelay is inserted between sequential provider calls.
	InterBatchDelay time.Duration
	// CacheTTL applies to cache-aside reads backed by the same provider.
	CacheTTL time.Duration
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PerPage <= 0 {
		c.PerPage = defaultPerPage
	}
	if c.PageCap <= 0 {
		c.PageCap = defaultPageCap
	}
	if c.InterBatchDelay < 0 {
		c.InterBatchDelay = defaultBatchDelay
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = defaultCacheTTL
	}
	return c
}

// SyncInput is the common request shape accepted by sync jobs.
type SyncInput struct {
	Symbols []string `json:"symbols,omitempty" validate:"omitempty,max=500,dive,min=1,max=32"`
	Limit   int      `json:"limit,omitempty" validate:"omitempty,gte=1,lte=10000"`
	Offset  int      `json:"offset,omitempty" validate:"omitempty,gte=0"`
	Force   bool     `json:"force,omitempty"`
}

// SyncReport summarises one sync invocation. Partial failure is reported, not
// thrown: committed batches stay committed when a later batch fails.
type SyncReport struct {
	Job        string        `json:"job"`
	Processed  int           `json:"processed"`
	Upserted   int           `json:"upserted"`
	Errors     int           `json:"errors"`
	Batches    int           `json:"batches"`
	HasMore    bool          `json:"has_more"`
	NextOffset int           `json:"next_offset"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
}

// upsertInBatches writes rows in bounded batches, counting per-batch failures
// into the report and pacing batches with the configured delay. Issuing batch
// N+1 only after batch N keeps peak store load bounded.
func upsertInBatches[T any](ctx context.Context, db *gorm.DB, job string, rows []T, conflict clause.OnConflict, batchSize int, delay time.Duration, report *SyncReport) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	log := logger.WithModule("sync")
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		batch := rows[start:end]
		report.Batches++

		if err := db.WithContext(ctx).Clauses(conflict).Create(&batch).Error; err != nil {
			report.Errors++
			metrics.SyncErrors.WithLabelValues(job).Inc()
			log.Warn("upsert batch failed",
				zap.String("job", job),
				zap.Int("batch", report.Batches),
				zap.Int("rows", len(batch)),
				zap.Error(err),
			)
			continue
		}

		report.Upserted += len(batch)
		metrics.SyncRows.WithLabelValues(job).Add(float64(len(batch)))

		if delay > 0 && end < len(rows) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}

// recordSyncRun persists the audit row for a finished sync. Failures here are
// logged and swallowed; the report has already been produced.
func recordSyncRun(ctx context.Context, db *gorm.DB, report SyncReport) {
	run := models.SyncRun{
		Job:        report.Job,
		Processed:  report.Processed,
		Upserted:   report.Upserted,
		Errors:     report.Errors,
		HasMore:    report.HasMore,
		NextOffset: report.NextOffset,
		Duration:   report.Duration,
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		logger.WithModule("sync").Warn("record sync run failed",
			zap.String("job", report.Job),
			zap.Error(err),
		)
	}
}

func (r *SyncReport) finish(started time.Time) {
	r.Duration = time.Since(started)
	r.DurationMS = r.Duration.Milliseconds()
}
