package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/tickerdeck/tickerdeck/internal/app"
	"github.com/tickerdeck/tickerdeck/internal/cache"
	"github.com/tickerdeck/tickerdeck/internal/handlers"
	"github.com/tickerdeck/tickerdeck/internal/middleware"
	"github.com/tickerdeck/tickerdeck/internal/realtime"
	"github.com/tickerdeck/tickerdeck/internal/services"
)

// Deps bundles the wired services the router exposes over HTTP.
type Deps struct {
	DB        *gorm.DB
	Store     *cache.DatabaseStore
	Prices    *services.PriceService
	Sentiment *services.SentimentService
	News      *services.NewsService
	Symbols   *services.SymbolService
	Hub       *realtime.Hub
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(cfg *app.Config, deps Deps) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Prices == nil || deps.Sentiment == nil || deps.News == nil || deps.Symbols == nil {
		return nil, fmt.Errorf("all services must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	if cfg.Server.RateLimit.Enabled {
		limit := cfg.Server.RateLimit
		if deps.Store != nil {
			// A shared store keeps counters consistent across instances.
			r.Use(middleware.RateLimitWithStore(middleware.NewDatabaseRateStore(deps.Store), limit.MaxRequests, limit.Window))
		} else {
			r.Use(middleware.RateLimit(limit.MaxRequests, limit.Window))
		}
	}

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(deps.DB))
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	priceHandler := handlers.NewPriceHandler(deps.Prices)
	symbolHandler := handlers.NewSymbolHandler(deps.Symbols)

	// Public dashboard routes
	api := r.Group("/api")
	{
		api.GET("/prices", priceHandler.Quotes)
		api.GET("/markets", priceHandler.Markets)
		api.GET("/sentiment", handlers.NewSentimentHandler(deps.Sentiment).Stats)
		api.GET("/news", handlers.NewNewsHandler(deps.News).Latest)
		api.GET("/symbols/resolve", symbolHandler.Resolve)
	}

	if deps.Hub != nil {
		api.GET("/stream", handlers.NewRealtimeHandler(deps.Hub).Stream)
	}

	// Admin routes: manual syncs and diagnostics, guarded by the shared token.
	syncHandler := handlers.NewSyncHandler(deps.Prices, deps.Sentiment, deps.News)
	admin := api.Group("")
	admin.Use(middleware.AdminToken(cfg.Admin.Token))
	{
		admin.POST("/sync/markets", syncHandler.Markets)
		admin.POST("/sync/sentiment", syncHandler.Sentiment)
		admin.POST("/sync/news", syncHandler.News)
		admin.GET("/symbols/missing", symbolHandler.Missing)
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
