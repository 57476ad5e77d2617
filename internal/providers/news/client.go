// Package news adapts the crypto news feed into news items.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"resty.dev/v3"

	"github.com/tickerdeck/tickerdeck/internal/models"
	"github.com/tickerdeck/tickerdeck/internal/providers"
)

// SourceName tags items produced by this adapter.
const SourceName = "news"

// Item is one provider headline.
type Item struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
	Source      struct {
		Title string `json:"title"`
	} `json:"source"`
	Currencies []struct {
		Code string `json:"code"`
	} `json:"currencies"`
}

// Page is one page of headlines with the provider's next-page cursor, empty
// when exhausted.
type Page struct {
	Results []Item `json:"results"`
	Next    string `json:"next"`
}

// Normalize maps a provider headline into the durable news row shape.
func (it Item) Normalize() models.NewsItem {
	published, err := time.Parse(time.RFC3339, it.PublishedAt)
	if err != nil {
		published = time.Time{}
	}

	codes := make([]string, 0, len(it.Currencies))
	for _, c := range it.Currencies {
		code := strings.ToUpper(strings.TrimSpace(c.Code))
		if code != "" {
			codes = append(codes, code)
		}
	}
	currencies, _ := json.Marshal(codes)

	return models.NewsItem{
		ExternalID:  fmt.Sprintf("%d", it.ID),
		Title:       strings.TrimSpace(it.Title),
		URL:         strings.TrimSpace(it.URL),
		Source:      strings.TrimSpace(it.Source.Title),
		Currencies:  currencies,
		PublishedAt: published,
	}
}

// Client calls the news provider.
type Client struct {
	cfg     providers.Config
	http    *resty.Client
	limiter *rate.Limiter
}

// New constructs a news provider client.
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

// Latest fetches one page of headlines. Pass the previous page's Next value
// as cursor to continue; an empty cursor starts from the newest items.
func (c *Client) Latest(ctx context.Context, cursor string, currencies []string) (Page, error) {
	if err := providers.RequireAPIKey(SourceName, c.cfg.APIKey); err != nil {
		return Page{}, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}

	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("auth_token", c.cfg.APIKey).
		SetQueryParam("public", "true")
	if len(currencies) > 0 {
		req.SetQueryParam("currencies", strings.Join(currencies, ","))
	}

	var page Page
	req.SetResult(&page)

	url := "/posts/"
	if cursor != "" {
		// The provider hands back a fully qualified next-page URL.
		url = cursor
	}

	resp, err := req.Get(url)
	if err != nil {
		return Page{}, fmt.Errorf("news latest: %w", err)
	}
	if err := providers.CheckStatus(SourceName, resp); err != nil {
		return Page{}, err
	}

	return page, nil
}
