package prices

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tickerdeck/tickerdeck/internal/providers"
	apperrors "github.com/tickerdeck/tickerdeck/pkg/errors"
)

func ptr[T any](v T) *T { return &v }

func TestMarketsFetchesAndDecodes(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		require.Equal(t, "/coins/markets", r.URL.Path)
		require.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]Market{
			{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: ptr(65000.0), MarketCapRank: ptr(1)},
		})
	}))
	defer srv.Close()

	client := New(providers.Config{BaseURL: srv.URL, APIKey: "test-key"})

	items, err := client.Markets(context.Background(), 2, 100)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "bitcoin", items[0].ID)
	require.Equal(t, 1, hits)
}

func TestMarketsMissingAPIKeyMakesNoCall(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	client := New(providers.Config{BaseURL: srv.URL})

	_, err := client.Markets(context.Background(), 1, 100)
	require.ErrorIs(t, err, apperrors.ErrConfigMissing)
	require.Zero(t, hits, "missing key must not produce outbound calls")
}

func TestMarketsRateLimitSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := New(providers.Config{BaseURL: srv.URL, APIKey: "k"})

	_, err := client.Markets(context.Background(), 1, 100)
	require.ErrorIs(t, err, apperrors.ErrProviderRateLimited)
}

func TestMarketsServerErrorIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New(providers.Config{BaseURL: srv.URL, APIKey: "k"})

	_, err := client.Markets(context.Background(), 1, 100)
	require.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
	require.NotErrorIs(t, err, apperrors.ErrProviderRateLimited)
}

func TestNormalizeCoercesMissingNumerics(t *testing.T) {
	now := time.Now()
	row := Market{ID: "newcoin", Symbol: "new", Name: "New Coin"}.Normalize(now)

	require.Equal(t, "NEW", row.Symbol)
	require.Zero(t, row.PriceUSD)
	require.Zero(t, row.MarketCap)
	require.Zero(t, row.Rank)
	require.Zero(t, row.Volume24h)
	require.Zero(t, row.Change24h)
	require.Equal(t, SourceName, row.Source)
	require.Equal(t, now, row.FetchedAt)
}

func TestSimplePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/simple/price", r.URL.Path)
		require.Equal(t, "bitcoin,ethereum", r.URL.Query().Get("ids"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":65000,"usd_24h_change":1.2},"ethereum":{"usd":3200}}`))
	}))
	defer srv.Close()

	client := New(providers.Config{BaseURL: srv.URL, APIKey: "k"})

	quotes, err := client.SimplePrice(context.Background(), []string{"bitcoin", "ethereum"})
	require.NoError(t, err)
	require.Equal(t, 65000.0, quotes["bitcoin"].USD)
	require.Equal(t, 3200.0, quotes["ethereum"].USD)
	require.Zero(t, quotes["ethereum"].Change24h)
}
