package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tickerdeck/tickerdeck/internal/models"
	"github.com/tickerdeck/tickerdeck/internal/providers/news"
	"github.com/tickerdeck/tickerdeck/pkg/logger"
)

// NewsProvider is the slice of the news provider the service depends on.
type NewsProvider interface {
	Latest(ctx context.Context, cursor string, currencies []string) (news.Page, error)
}

// NewsService syncs headlines into the news table and serves them to the
// dashboard.
type NewsService struct {
	db       *gorm.DB
	provider NewsProvider
	cfg      SyncConfig
	log      *zap.Logger
	now      func() time.Time
}

// NewNewsService constructs a NewsService.
func NewNewsService(db *gorm.DB, provider NewsProvider, cfg SyncConfig) (*NewsService, error) {
	if db == nil {
		return nil, errors.New("news service: db is required")
	}
	if provider == nil {
		return nil, errors.New("news service: provider is required")
	}
	return &NewsService{
		db:       db,
		provider: provider,
		cfg:      cfg.withDefaults(),
		log:      logger.WithModule("news"),
		now:      time.Now,
	}, nil
}

var newsConflict = clause.OnConflict{
	Columns: []clause.Column{{Name: "external_id"}},
	DoUpdates: clause.AssignmentColumns([]string{
		"title", "url", "source", "currencies", "published_at", "updated_at",
	}),
}

// SyncNews pulls headline pages following the provider's next-page cursor
// until exhausted or the page cap is reached. Re-syncing overlapping pages is
// idempotent because rows upsert by external id.
func (s *NewsService) SyncNews(ctx context.Context, input SyncInput) (SyncReport, error) {
	ctx = ensureContext(ctx)
	started := s.now()
	report := SyncReport{Job: "news"}

	currencies := normaliseSymbols(input.Symbols)
	cursor := ""
	pages := 0

	for {
		if pages >= s.cfg.PageCap {
			report.HasMore = cursor != ""
			break
		}

		page, err := s.provider.Latest(ctx, cursor, currencies)
		if err != nil {
			if report.Processed == 0 {
				return report, err
			}
			report.Errors++
			s.log.Warn("news page fetch failed, keeping committed batches",
				zap.Int("page", pages), zap.Error(err))
			break
		}
		pages++

		rows := make([]models.NewsItem, 0, len(page.Results))
		seen := make(map[string]struct{}, len(page.Results))
		for _, item := range page.Results {
			row := item.Normalize()
			if row.ExternalID == "" || row.Title == "" {
				continue
			}
			if _, dup := seen[row.ExternalID]; dup {
				continue
			}
			seen[row.ExternalID] = struct{}{}
			rows = append(rows, row)
		}
		report.Processed += len(page.Results)

		upsertInBatches(ctx, s.db, report.Job, rows, newsConflict, s.cfg.BatchSize, s.cfg.InterBatchDelay, &report)

		cursor = page.Next
		if cursor == "" {
			break
		}
		if input.Limit > 0 && report.Processed >= input.Limit {
			report.HasMore = true
			break
		}

		if s.cfg.InterBatchDelay > 0 {
			select {
			case <-ctx.Done():
				report.finish(started)
				return report, ctx.Err()
			case <-time.After(s.cfg.InterBatchDelay):
			}
		}
	}

	report.finish(started)
	recordSyncRun(ctx, s.db, report)
	s.log.Info("news sync finished",
		zap.Int("processed", report.Processed),
		zap.Int("upserted", report.Upserted),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

// Latest reads stored headlines, newest first, optionally filtered to items
// tagged with one of the supplied currency codes.
func (s *NewsService) Latest(ctx context.Context, limit int, currencies []string) ([]models.NewsItem, error) {
	ctx = ensureContext(ctx)
	limit = clampLimit(limit, 25, 100)

	q := s.db.WithContext(ctx).Model(&models.NewsItem{}).
		Order("published_at DESC").
		Limit(limit)

	codes := normaliseSymbols(currencies)
	if len(codes) > 0 {
		// Currencies is a JSON array of codes; a LIKE per code keeps the
		// filter portable across sqlite, postgres, and mysql.
		var filter *gorm.DB
		for i, code := range codes {
			pattern := fmt.Sprintf("%%%q%%", code)
			if i == 0 {
				filter = s.db.Where("currencies LIKE ?", pattern)
			} else {
				filter = filter.Or("currencies LIKE ?", pattern)
			}
		}
		q = q.Where(filter)
	}

	var rows []models.NewsItem
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("news service: latest: %w", err)
	}
	return rows, nil
}
