package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tickerdeck/tickerdeck/internal/cache"
	"github.com/tickerdeck/tickerdeck/internal/database/testutil"
	"github.com/tickerdeck/tickerdeck/internal/models"
	"github.com/tickerdeck/tickerdeck/internal/providers/news"
	"github.com/tickerdeck/tickerdeck/internal/providers/prices"
	"github.com/tickerdeck/tickerdeck/internal/providers/sentiment"
	"github.com/tickerdeck/tickerdeck/internal/services"
	apperrors "github.com/tickerdeck/tickerdeck/pkg/errors"
	"github.com/tickerdeck/tickerdeck/pkg/response"
)

type stubMarketsProvider struct {
	markets []prices.Market
	quotes  map[string]prices.Quote
	err     error
	calls   int
}

func (s *stubMarketsProvider) Markets(context.Context, int, int) ([]prices.Market, error) {
	s.calls++
	return s.markets, s.err
}

func (s *stubMarketsProvider) SimplePrice(_ context.Context, ids []string) (map[string]prices.Quote, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]prices.Quote, len(ids))
	for _, id := range ids {
		if q, ok := s.quotes[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

type stubSentimentProvider struct{}

func (stubSentimentProvider) Stats(_ context.Context, symbols []string) ([]sentiment.TopicStats, error) {
	out := make([]sentiment.TopicStats, 0, len(symbols))
	for _, symbol := range symbols {
		score := 60.0
		out = append(out, sentiment.TopicStats{Symbol: symbol, GalaxyScore: &score})
	}
	return out, nil
}

type stubNewsProvider struct{ page news.Page }

func (s stubNewsProvider) Latest(context.Context, string, []string) (news.Page, error) {
	return s.page, nil
}

type testEnv struct {
	db     *gorm.DB
	router *gin.Engine
	prov   *stubMarketsProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	loader, err := cache.NewLoader(cache.NewDatabaseStore(db))
	require.NoError(t, err)

	prov := &stubMarketsProvider{quotes: map[string]prices.Quote{
		"bitcoin":  {USD: 65000, Change24h: 1.2},
		"ethereum": {USD: 3200, Change24h: -0.4},
	}}

	priceSvc, err := services.NewPriceService(db, prov, loader, services.SyncConfig{})
	require.NoError(t, err)
	sentimentSvc, err := services.NewSentimentService(db, stubSentimentProvider{}, loader, services.SyncConfig{})
	require.NoError(t, err)
	newsSvc, err := services.NewNewsService(db, stubNewsProvider{}, services.SyncConfig{})
	require.NoError(t, err)
	symbolSvc, err := services.NewSymbolService(db)
	require.NoError(t, err)

	r := gin.New()
	priceHandler := NewPriceHandler(priceSvc)
	r.GET("/api/prices", priceHandler.Quotes)
	r.GET("/api/markets", priceHandler.Markets)
	r.GET("/api/sentiment", NewSentimentHandler(sentimentSvc).Stats)
	r.GET("/api/news", NewNewsHandler(newsSvc).Latest)
	symbolHandler := NewSymbolHandler(symbolSvc)
	r.GET("/api/symbols/resolve", symbolHandler.Resolve)
	r.GET("/api/symbols/missing", symbolHandler.Missing)
	syncHandler := NewSyncHandler(priceSvc, sentimentSvc, newsSvc)
	r.POST("/api/sync/markets", syncHandler.Markets)
	r.GET("/health", Health(db))

	return &testEnv{db: db, router: r, prov: prov}
}

func (e *testEnv) request(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	e.router.ServeHTTP(w, req)

	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return w, payload
}

func TestPriceHandlerQuotes(t *testing.T) {
	env := newTestEnv(t)

	w, payload := env.request(t, http.MethodGet, "/api/prices?symbols=BTC,ETH", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, payload.Success)

	quotes := payload.Data.([]any)
	require.Len(t, quotes, 2)
	first := quotes[0].(map[string]any)
	require.Equal(t, "BTC", first["symbol"])
	require.Equal(t, 65000.0, first["price_usd"])
}

func TestPriceHandlerQuotesRequiresSymbols(t *testing.T) {
	env := newTestEnv(t)

	w, payload := env.request(t, http.MethodGet, "/api/prices", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.False(t, payload.Success)
	require.Equal(t, "BAD_REQUEST", payload.Error.Code)
}

func TestPriceHandlerQuotesProviderErrorEnvelope(t *testing.T) {
	env := newTestEnv(t)
	env.prov.err = apperrors.ErrProviderRateLimited

	w, payload := env.request(t, http.MethodGet, "/api/prices?symbols=BTC", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.False(t, payload.Success)
	require.Equal(t, "PROVIDER_RATE_LIMITED", payload.Error.Code)
}

func TestMarketsHandlerPagination(t *testing.T) {
	env := newTestEnv(t)

	now := time.Now().UTC()
	var rows []models.TickerSnapshot
	for i := 1; i <= 5; i++ {
		rows = append(rows, models.TickerSnapshot{
			Symbol: fmt.Sprintf("M%d", i), Name: fmt.Sprintf("Coin %d", i),
			Rank: i, Source: "prices", FetchedAt: now,
		})
	}
	require.NoError(t, env.db.Create(&rows).Error)

	w, payload := env.request(t, http.MethodGet, "/api/markets?limit=2&offset=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, payload.Meta)
	require.EqualValues(t, 5, payload.Meta.Total)

	data := payload.Data.([]any)
	require.Len(t, data, 2)
	require.Equal(t, "M3", data[0].(map[string]any)["symbol"])
}

func TestSentimentHandlerStats(t *testing.T) {
	env := newTestEnv(t)

	w, payload := env.request(t, http.MethodGet, "/api/sentiment?symbols=BTC", "")
	require.Equal(t, http.StatusOK, w.Code)
	rows := payload.Data.([]any)
	require.Len(t, rows, 1)
	require.Equal(t, "BTC", rows[0].(map[string]any)["symbol"])
}

func TestSymbolHandlerResolve(t *testing.T) {
	env := newTestEnv(t)

	w, payload := env.request(t, http.MethodGet, "/api/symbols/resolve?symbol=GIGA2", "")
	require.Equal(t, http.StatusOK, w.Code)

	data := payload.Data.(map[string]any)
	require.Equal(t, "GIGA", data["symbol"])
	candidates := data["candidates"].([]any)
	require.Equal(t, "COINBASE:GIGAUSD", candidates[0])

	// The unresolved symbol lands on the missing list.
	w, payload = env.request(t, http.MethodGet, "/api/symbols/missing", "")
	require.Equal(t, http.StatusOK, w.Code)
	missing := payload.Data.([]any)
	require.Len(t, missing, 1)
	require.Equal(t, "GIGA", missing[0].(map[string]any)["symbol"])
}

func TestSyncHandlerMarkets(t *testing.T) {
	env := newTestEnv(t)
	env.prov.markets = []prices.Market{{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"}}

	w, payload := env.request(t, http.MethodPost, "/api/sync/markets", `{"limit":100}`)
	require.Equal(t, http.StatusOK, w.Code)

	data := payload.Data.(map[string]any)
	require.Equal(t, "markets", data["job"])
	require.Equal(t, 1.0, data["processed"])
	require.Equal(t, 1.0, data["upserted"])
}

func TestSyncHandlerRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	w, payload := env.request(t, http.MethodPost, "/api/sync/markets", `{"limit":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.False(t, payload.Success)
}

func TestSyncHandlerValidatesInput(t *testing.T) {
	env := newTestEnv(t)

	w, payload := env.request(t, http.MethodPost, "/api/sync/markets", `{"limit":-5}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.False(t, payload.Success)
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)

	w, payload := env.request(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, payload.Success)
	require.Equal(t, "ok", payload.Data.(map[string]any)["status"])
}
