package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tickerdeck/tickerdeck/internal/cache"
	"github.com/tickerdeck/tickerdeck/internal/models"
	"github.com/tickerdeck/tickerdeck/internal/providers/prices"
	apperrors "github.com/tickerdeck/tickerdeck/pkg/errors"
	"github.com/tickerdeck/tickerdeck/pkg/logger"
)

// quoteFanOut bounds parallel provider calls issued by one Quotes invocation.
const quoteFanOut = 4

// MarketsProvider is the slice of the price provider the service depends on.
type MarketsProvider interface {
	Markets(ctx context.Context, page, perPage int) ([]prices.Market, error)
	SimplePrice(ctx context.Context, ids []string) (map[string]prices.Quote, error)
}

// QuoteDTO is the API-facing spot quote payload.
type QuoteDTO struct {
	Symbol    string    `json:"symbol"`
	PriceUSD  float64   `json:"price_usd"`
	Change24h float64   `json:"change_24h"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

// PriceService syncs the coin universe snapshot table and serves cache-aside
// spot quotes.
type PriceService struct {
	db       *gorm.DB
	provider MarketsProvider
	loader   *cache.Loader
	cfg      SyncConfig
	log      *zap.Logger
	now      func() time.Time
}

// NewPriceService constructs a PriceService.
func NewPriceService(db *gorm.DB, provider MarketsProvider, loader *cache.Loader, cfg SyncConfig) (*PriceService, error) {
	if db == nil {
		return nil, errors.New("price service: db is required")
	}
	if provider == nil {
		return nil, errors.New("price service: provider is required")
	}
	if loader == nil {
		return nil, errors.New("price service: cache loader is required")
	}
	return &PriceService{
		db:       db,
		provider: provider,
		loader:   loader,
		cfg:      cfg.withDefaults(),
		log:      logger.WithModule("prices"),
		now:      time.Now,
	}, nil
}

var tickerConflict = clause.OnConflict{
	Columns: []clause.Column{{Name: "symbol"}},
	DoUpdates: clause.AssignmentColumns([]string{
		"name", "price_usd", "market_cap", "rank", "volume_24h",
		"change_24h", "source", "fetched_at", "updated_at",
	}),
}

// Quotes returns spot quotes for the requested symbols, serving each symbol
// through the cache-aside path. Provider calls for cold symbols fan out in
// parallel, bounded by quoteFanOut.
func (s *PriceService) Quotes(ctx context.Context, symbols []string, force bool) ([]QuoteDTO, error) {
	ctx = ensureContext(ctx)
	symbols = normaliseSymbols(symbols)
	if len(symbols) == 0 {
		return nil, apperrors.NewBadRequest("at least one symbol is required")
	}
	if len(symbols) > 50 {
		return nil, apperrors.NewBadRequest("at most 50 symbols per request")
	}

	var (
		mu  sync.Mutex
		out = make(map[string]QuoteDTO, len(symbols))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(quoteFanOut)

	for _, symbol := range symbols {
		g.Go(func() error {
			key := "prices:spot:v1:" + symbol
			if force {
				if err := s.loader.Invalidate(gctx, key); err != nil {
					s.log.Warn("invalidate failed", zap.String("key", key), zap.Error(err))
				}
			}

			payload, _, err := s.loader.GetOrFetch(gctx, key, s.cfg.CacheTTL, func(fctx context.Context) ([]byte, error) {
				return s.fetchQuote(fctx, symbol)
			})
			if err != nil {
				return err
			}

			var dto QuoteDTO
			if err := json.Unmarshal(payload, &dto); err != nil {
				return fmt.Errorf("price service: decode cached quote for %s: %w", symbol, err)
			}

			mu.Lock()
			out[symbol] = dto
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Preserve the caller's symbol order.
	result := make([]QuoteDTO, 0, len(symbols))
	for _, symbol := range symbols {
		if dto, ok := out[symbol]; ok {
			result = append(result, dto)
		}
	}
	return result, nil
}

// fetchQuote resolves the provider coin id for a symbol and produces the
// serialized quote payload cached under the symbol's key.
func (s *PriceService) fetchQuote(ctx context.Context, symbol string) ([]byte, error) {
	coinID := strings.ToLower(symbol)
	var mapping models.SymbolMapping
	err := s.db.WithContext(ctx).Take(&mapping, "symbol = ?", symbol).Error
	if err == nil && mapping.CoinID != "" {
		coinID = mapping.CoinID
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("price service: mapping lookup for %s: %w", symbol, err)
	}

	quotes, err := s.provider.SimplePrice(ctx, []string{coinID})
	if err != nil {
		return nil, err
	}

	// An unknown coin id yields an empty map; a zero quote is still cached so
	// repeated lookups do not hammer the provider.
	quote := quotes[coinID]
	dto := QuoteDTO{
		Symbol:    symbol,
		PriceUSD:  quote.USD,
		Change24h: quote.Change24h,
		Source:    prices.SourceName,
		FetchedAt: s.now().UTC(),
	}
	return json.Marshal(dto)
}

// SyncUniverse refreshes the ticker snapshot table from the paginated markets
// feed. It follows pages until the provider is exhausted or the page cap is
// hit, reporting has_more with the offset the next invocation should resume
// from.
func (s *PriceService) SyncUniverse(ctx context.Context, input SyncInput) (SyncReport, error) {
	ctx = ensureContext(ctx)
	started := s.now()
	report := SyncReport{Job: "markets"}

	perPage := s.cfg.PerPage
	if input.Limit > 0 && input.Limit < perPage {
		perPage = input.Limit
	}

	startPage := input.Offset/perPage + 1
	pagesFetched := 0

	for page := startPage; ; page++ {
		items, err := s.provider.Markets(ctx, page, perPage)
		if err != nil {
			if report.Processed == 0 {
				// Nothing committed yet: surface the failure.
				return report, err
			}
			// Later pages failing must not abort already-committed batches.
			report.Errors++
			s.log.Warn("markets page fetch failed, keeping committed batches",
				zap.Int("page", page), zap.Error(err))
			break
		}
		pagesFetched++

		now := s.now().UTC()
		seen := make(map[string]struct{}, len(items))
		rows := make([]models.TickerSnapshot, 0, len(items))
		for _, item := range items {
			row := item.Normalize(now)
			if row.Symbol == "" {
				continue
			}
			// The provider lists distinct coins that share a ticker symbol;
			// keep the highest-ranked one so the upsert batch stays
			// conflict-free.
			if _, dup := seen[row.Symbol]; dup {
				continue
			}
			seen[row.Symbol] = struct{}{}
			rows = append(rows, row)
		}
		report.Processed += len(items)

		upsertInBatches(ctx, s.db, report.Job, rows, tickerConflict, s.cfg.BatchSize, s.cfg.InterBatchDelay, &report)

		if len(items) < perPage {
			break
		}
		if input.Limit > 0 && report.Processed >= input.Limit {
			report.HasMore = true
			report.NextOffset = input.Offset + report.Processed
			break
		}
		if pagesFetched >= s.cfg.PageCap {
			report.HasMore = true
			report.NextOffset = input.Offset + report.Processed
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
	s.log.Info("universe sync finished",
		zap.Int("processed", report.Processed),
		zap.Int("upserted", report.Upserted),
		zap.Int("errors", report.Errors),
		zap.Bool("has_more", report.HasMore),
	)
	return report, nil
}

// ListMarkets reads the snapshot table directly; it never touches a provider.
func (s *PriceService) ListMarkets(ctx context.Context, limit, offset int) ([]models.TickerSnapshot, int64, error) {
	ctx = ensureContext(ctx)
	limit = clampLimit(limit, 50, 250)
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.TickerSnapshot{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("price service: count markets: %w", err)
	}

	var rows []models.TickerSnapshot
	if err := s.db.WithContext(ctx).
		Order("CASE WHEN rank = 0 THEN 1 ELSE 0 END, rank").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("price service: list markets: %w", err)
	}

	return rows, total, nil
}
