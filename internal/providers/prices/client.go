// Package prices adapts the coin-universe price feed (markets listing plus
// spot quotes) into ticker snapshots.
package prices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"resty.dev/v3"

	"github.com/tickerdeck/tickerdeck/internal/models"
	"github.com/tickerdeck/tickerdeck/internal/providers"
)

// SourceName tags snapshots produced by this adapter.
const SourceName = "prices"

// Market is the provider's per-coin markets item. Numeric fields are pointers
// because the provider omits them for thinly traded assets; Normalize coerces
// absent values to zero.
type Market struct {
	ID            string   `json:"id"`
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	CurrentPrice  *float64 `json:"current_price"`
	MarketCap     *float64 `json:"market_cap"`
	MarketCapRank *int     `json:"market_cap_rank"`
	TotalVolume   *float64 `json:"total_volume"`
	Change24h     *float64 `json:"price_change_percentage_24h"`
}

// Normalize maps a provider market item into the snapshot row shape.
func (m Market) Normalize(now time.Time) models.TickerSnapshot {
	return models.TickerSnapshot{
		Symbol:    strings.ToUpper(strings.TrimSpace(m.Symbol)),
		Name:      strings.TrimSpace(m.Name),
		PriceUSD:  deref(m.CurrentPrice),
		MarketCap: deref(m.MarketCap),
		Rank:      derefInt(m.MarketCapRank),
		Volume24h: deref(m.TotalVolume),
		Change24h: deref(m.Change24h),
		Source:    SourceName,
		FetchedAt: now,
	}
}

// Quote is one spot price entry keyed by coin id.
type Quote struct {
	USD       float64 `json:"usd"`
	Change24h float64 `json:"usd_24h_change"`
}

// Client calls the price provider.
type Client struct {
	cfg     providers.Config
	http    *resty.Client
	limiter *rate.Limiter
}

// New constructs a price provider client.
func New(cfg providers.Config) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		cfg:     cfg,
		http:    providers.NewHTTPClient(cfg),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Markets fetches one page of the coin universe ordered by market cap.
func (c *Client) Markets(ctx context.Context, page, perPage int) ([]Market, error) {
	if err := providers.RequireAPIKey(SourceName, c.cfg.APIKey); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var items []Market
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.cfg.APIKey).
		SetQueryParams(map[string]string{
			"vs_currency": "usd",
			"order":       "market_cap_desc",
			"page":        fmt.Sprintf("%d", page),
			"per_page":    fmt.Sprintf("%d", perPage),
		}).
		SetResult(&items).
		Get("/coins/markets")
	if err != nil {
		return nil, fmt.Errorf("prices markets page %d: %w", page, err)
	}
	if err := providers.CheckStatus(SourceName, resp); err != nil {
		return nil, err
	}

	return items, nil
}

// SimplePrice fetches spot quotes for an explicit list of coin ids.
func (c *Client) SimplePrice(ctx context.Context, ids []string) (map[string]Quote, error) {
	if err := providers.RequireAPIKey(SourceName, c.cfg.APIKey); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return map[string]Quote{}, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	quotes := map[string]Quote{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.cfg.APIKey).
		SetQueryParams(map[string]string{
			"ids":                 strings.Join(ids, ","),
			"vs_currencies":       "usd",
			"include_24hr_change": "true",
		}).
		SetResult(&quotes).
		Get("/simple/price")
	if err != nil {
		return nil, fmt.Errorf("prices spot quotes: %w", err)
	}
	if err := providers.CheckStatus(SourceName, resp); err != nil {
		return nil, err
	}

	return quotes, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
