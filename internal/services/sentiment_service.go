package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tickerdeck/tickerdeck/internal/cache"
	"github.com/tickerdeck/tickerdeck/internal/models"
	"github.com/tickerdeck/tickerdeck/internal/providers/sentiment"
	apperrors "github.com/tickerdeck/tickerdeck/pkg/errors"
	"github.com/tickerdeck/tickerdeck/pkg/logger"
)

// topicsPerCall bounds how many topics one provider request may carry.
const topicsPerCall = 25

// SentimentProvider is the slice of the social provider the service depends on.
type SentimentProvider interface {
	Stats(ctx context.Context, symbols []string) ([]sentiment.TopicStats, error)
}

// SentimentService syncs the sentiment snapshot table and serves cache-aside
// social stats.
type SentimentService struct {
	db       *gorm.DB
	provider SentimentProvider
	loader   *cache.Loader
	cfg      SyncConfig
	log      *zap.Logger
	now      func() time.Time
}

// NewSentimentService constructs a SentimentService.
func NewSentimentService(db *gorm.DB, provider SentimentProvider, loader *cache.Loader, cfg SyncConfig) (*SentimentService, error) {
	if db == nil {
		return nil, errors.New("sentiment service: db is required")
	}
	if provider == nil {
		return nil, errors.New("sentiment service: provider is required")
	}
	if loader == nil {
		return nil, errors.New("sentiment service: cache loader is required")
	}
	return &SentimentService{
		db:       db,
		provider: provider,
		loader:   loader,
		cfg:      cfg.withDefaults(),
		log:      logger.WithModule("sentiment"),
		now:      time.Now,
	}, nil
}

var sentimentConflict = clause.OnConflict{
	Columns: []clause.Column{{Name: "symbol"}},
	DoUpdates: clause.AssignmentColumns([]string{
		"galaxy_score", "alt_rank", "social_volume", "sentiment",
		"source", "fetched_at", "updated_at",
	}),
}

// Stats returns social metrics for the requested symbols through the
// cache-aside path. All requested symbols share one cache key so a dashboard
// page refresh costs at most one provider call.
func (s *SentimentService) Stats(ctx context.Context, symbols []string, force bool) ([]models.SentimentSnapshot, error) {
	ctx = ensureContext(ctx)
	symbols = normaliseSymbols(symbols)
	if len(symbols) == 0 {
		return nil, apperrors.NewBadRequest("at least one symbol is required")
	}
	if len(symbols) > topicsPerCall {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("at most %d symbols per request", topicsPerCall))
	}

	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	key := "social:stats:v1:" + strings.Join(sorted, ",")
	if force {
		if err := s.loader.Invalidate(ctx, key); err != nil {
			s.log.Warn("invalidate failed", zap.String("key", key), zap.Error(err))
		}
	}

	payload, _, err := s.loader.GetOrFetch(ctx, key, s.cfg.CacheTTL, func(fctx context.Context) ([]byte, error) {
		stats, err := s.provider.Stats(fctx, symbols)
		if err != nil {
			return nil, err
		}
		now := s.now().UTC()
		rows := make([]models.SentimentSnapshot, 0, len(stats))
		for _, stat := range stats {
			row := stat.Normalize(now)
			if row.Symbol == "" {
				continue
			}
			rows = append(rows, row)
		}
		return json.Marshal(rows)
	})
	if err != nil {
		return nil, err
	}

	var rows []models.SentimentSnapshot
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("sentiment service: decode cached stats: %w", err)
	}
	return rows, nil
}

// SyncSentiment refreshes the sentiment snapshot table. Without an explicit
// symbol list it covers the current ticker universe, chunked into bounded
// provider calls with the configured inter-call delay.
func (s *SentimentService) SyncSentiment(ctx context.Context, input SyncInput) (SyncReport, error) {
	ctx = ensureContext(ctx)
	started := s.now()
	report := SyncReport{Job: "sentiment"}

	symbols := normaliseSymbols(input.Symbols)
	if len(symbols) == 0 {
		var err error
		symbols, err = s.trackedSymbols(ctx, input.Limit)
		if err != nil {
			return report, err
		}
	}
	if input.Offset > 0 && input.Offset < len(symbols) {
		symbols = symbols[input.Offset:]
	}
	if len(symbols) == 0 {
		report.finish(started)
		return report, nil
	}

	calls := 0
	for start := 0; start < len(symbols); start += topicsPerCall {
		if calls >= s.cfg.PageCap {
			report.HasMore = true
			report.NextOffset = input.Offset + start
			break
		}
		end := min(start+topicsPerCall, len(symbols))
		chunk := symbols[start:end]
		calls++

		stats, err := s.provider.Stats(ctx, chunk)
		if err != nil {
			if report.Processed == 0 {
				return report, err
			}
			report.Errors++
			s.log.Warn("sentiment chunk fetch failed, keeping committed batches",
				zap.Int("offset", start), zap.Error(err))
			break
		}

		now := s.now().UTC()
		rows := make([]models.SentimentSnapshot, 0, len(stats))
		seen := make(map[string]struct{}, len(stats))
		for _, stat := range stats {
			row := stat.Normalize(now)
			if row.Symbol == "" {
				continue
			}
			if _, dup := seen[row.Symbol]; dup {
				continue
			}
			seen[row.Symbol] = struct{}{}
			rows = append(rows, row)
		}
		report.Processed += len(stats)

		upsertInBatches(ctx, s.db, report.Job, rows, sentimentConflict, s.cfg.BatchSize, s.cfg.InterBatchDelay, &report)

		if end < len(symbols) && s.cfg.InterBatchDelay > 0 {
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
	s.log.Info("sentiment sync finished",
		zap.Int("processed", report.Processed),
		zap.Int("upserted", report.Upserted),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

// trackedSymbols lists the universe the sentiment sync covers, ordered by
// market cap rank so the most visible assets refresh first.
func (s *SentimentService) trackedSymbols(ctx context.Context, limit int) ([]string, error) {
	limit = clampLimit(limit, 100, 1000)

	var symbols []string
	if err := s.db.WithContext(ctx).
		Model(&models.TickerSnapshot{}).
		Order("CASE WHEN rank = 0 THEN 1 ELSE 0 END, rank").
		Limit(limit).
		Pluck("symbol", &symbols).Error; err != nil {
		return nil, fmt.Errorf("sentiment service: tracked symbols: %w", err)
	}
	return symbols, nil
}
