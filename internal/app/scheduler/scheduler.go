package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tickerdeck/tickerdeck/internal/cache"
	"github.com/tickerdeck/tickerdeck/internal/services"
	"github.com/tickerdeck/tickerdeck/pkg/logger"
)

const (
	defaultMarketsSpec   = "@every 5m"
	defaultSentimentSpec = "@hourly"
	defaultNewsSpec      = "@every 10m"
	defaultPruneSpec     = "@daily"

	defaultCacheRetention = 7 * 24 * time.Hour

	// maxFollowUps bounds continuation calls when a capped sync reports
	// more pages, so one scheduled run cannot loop on a huge universe.
	maxFollowUps = 10
)

// SyncJob is one provider synchronisation entry point. All three snapshot
// services satisfy it through small adapter funcs.
type SyncJob func(ctx context.Context, input services.SyncInput) (services.SyncReport, error)

// Scheduler drives the periodic snapshot syncs and cache maintenance.
type Scheduler struct {
	prices    *services.PriceService
	sentiment *services.SentimentService
	news      *services.NewsService
	store     *cache.DatabaseStore

	cron      *cron.Cron
	log       *zap.Logger
	retention time.Duration

	marketsSchedule   string
	sentimentSchedule string
	newsSchedule      string
	pruneSchedule     string
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithCacheRetention adjusts how long expired cache entries are kept before pruning.
func WithCacheRetention(retention time.Duration) Option {
	return func(s *Scheduler) {
		if retention > 0 {
			s.retention = retention
		}
	}
}

// WithMarketsSchedule overrides the cron specification for the markets sync.
func WithMarketsSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.marketsSchedule = spec
		}
	}
}

// WithSentimentSchedule overrides the cron specification for the sentiment sync.
func WithSentimentSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.sentimentSchedule = spec
		}
	}
}

// WithNewsSchedule overrides the cron specification for the news sync.
func WithNewsSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.newsSchedule = spec
		}
	}
}

// WithPruneSchedule overrides the cron specification for cache pruning.
func WithPruneSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.pruneSchedule = spec
		}
	}
}

// New constructs a Scheduler with sensible defaults. Any nil dependency
// results in the corresponding job being skipped.
func New(prices *services.PriceService, sentiment *services.SentimentService, news *services.NewsService, store *cache.DatabaseStore, opts ...Option) *Scheduler {
	s := &Scheduler{
		prices:            prices,
		sentiment:         sentiment,
		news:              news,
		store:             store,
		retention:         defaultCacheRetention,
		marketsSchedule:   defaultMarketsSpec,
		sentimentSchedule: defaultSentimentSpec,
		newsSchedule:      defaultNewsSpec,
		pruneSchedule:     defaultPruneSpec,
		log:               logger.WithModule("scheduler"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return s
}

// Start registers the enabled jobs with the cron scheduler and launches it.
func (s *Scheduler) Start() error {
	type entry struct {
		name string
		spec string
		run  func(context.Context) error
	}

	entries := make([]entry, 0, 4)
	if s.prices != nil {
		entries = append(entries, entry{"markets", s.marketsSchedule, s.syncMarkets})
	}
	if s.sentiment != nil {
		entries = append(entries, entry{"sentiment", s.sentimentSchedule, s.syncSentiment})
	}
	if s.news != nil {
		entries = append(entries, entry{"news", s.newsSchedule, s.syncNews})
	}
	if s.store != nil {
		entries = append(entries, entry{"cache_prune", s.pruneSchedule, s.pruneCache})
	}

	for _, e := range entries {
		e := e
		if _, err := s.cron.AddFunc(e.spec, func() {
			if err := e.run(context.Background()); err != nil {
				s.log.Warn("scheduled job failed", zap.String("job", e.name), zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes every configured job sequentially. Used in tests and for
// warming the store on start-up.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if s.prices != nil {
		errs = multierr.Append(errs, s.syncMarkets(ctx))
	}
	if s.sentiment != nil {
		errs = multierr.Append(errs, s.syncSentiment(ctx))
	}
	if s.news != nil {
		errs = multierr.Append(errs, s.syncNews(ctx))
	}
	if s.store != nil {
		errs = multierr.Append(errs, s.pruneCache(ctx))
	}
	return errs
}

func (s *Scheduler) syncMarkets(ctx context.Context) error {
	return s.runToCompletion(ctx, "markets", s.prices.SyncUniverse)
}

func (s *Scheduler) syncSentiment(ctx context.Context) error {
	return s.runToCompletion(ctx, "sentiment", s.sentiment.SyncSentiment)
}

func (s *Scheduler) syncNews(ctx context.Context) error {
	return s.runToCompletion(ctx, "news", s.news.SyncNews)
}

// runToCompletion drives one sync job, following NextOffset continuations
// when a page-capped run reports more data, up to maxFollowUps.
func (s *Scheduler) runToCompletion(ctx context.Context, name string, job SyncJob) error {
	input := services.SyncInput{}
	for attempt := 0; ; attempt++ {
		report, err := job(ctx, input)
		if err != nil {
			return err
		}
		s.log.Info("sync job completed",
			zap.String("job", name),
			zap.Int("processed", report.Processed),
			zap.Int("upserted", report.Upserted),
			zap.Int("errors", report.Errors),
			zap.Bool("has_more", report.HasMore),
		)
		if !report.HasMore || attempt >= maxFollowUps {
			return nil
		}
		input.Offset = report.NextOffset
	}
}

func (s *Scheduler) pruneCache(ctx context.Context) error {
	pruned, err := s.store.PruneExpired(ctx, s.retention)
	if err != nil {
		return err
	}
	if pruned > 0 {
		s.log.Info("pruned expired cache entries", zap.Int64("pruned", pruned))
	}
	return nil
}
