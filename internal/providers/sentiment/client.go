// Package sentiment adapts the social-sentiment feed into sentiment
// snapshots.
package sentiment

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
const SourceName = "social"

// TopicStats is the provider's per-topic social metrics item.
type TopicStats struct {
	Symbol       string   `json:"symbol"`
	GalaxyScore  *float64 `json:"galaxy_score"`
	AltRank      *int     `json:"alt_rank"`
	SocialVolume *float64 `json:"social_volume_24h"`
	Sentiment    *float64 `json:"sentiment"`
}

type statsResponse struct {
	Data []TopicStats `json:"data"`
}

// Normalize maps a provider stats item into the snapshot row shape, coercing
// absent metrics to zero.
func (s TopicStats) Normalize(now time.Time) models.SentimentSnapshot {
	row := models.SentimentSnapshot{
		Symbol:    strings.ToUpper(strings.TrimSpace(s.Symbol)),
		Source:    SourceName,
		FetchedAt: now,
	}
	if s.GalaxyScore != nil {
		row.GalaxyScore = *s.GalaxyScore
	}
	if s.AltRank != nil {
		row.AltRank = *s.AltRank
	}
	if s.SocialVolume != nil {
		row.SocialVolume = *s.SocialVolume
	}
	if s.Sentiment != nil {
		row.Sentiment = *s.Sentiment
	}
	return row
}

// Client calls the social-sentiment provider.
type Client struct {
	cfg     providers.Config
	http    *resty.Client
	limiter *rate.Limiter
}

// New constructs a sentiment provider client.
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

// Stats fetches social metrics for the supplied topic symbols.
func (c *Client) Stats(ctx context.Context, symbols []string) ([]TopicStats, error) {
	if err := providers.RequireAPIKey(SourceName, c.cfg.APIKey); err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var out statsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.cfg.APIKey).
		SetQueryParam("symbols", strings.Join(symbols, ",")).
		SetResult(&out).
		Get("/public/coins/stats")
	if err != nil {
		return nil, fmt.Errorf("social stats: %w", err)
	}
	if err := providers.CheckStatus(SourceName, resp); err != nil {
		return nil, err
	}

	return out.Data, nil
}
