package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tickerdeck/tickerdeck/internal/api"
	"github.com/tickerdeck/tickerdeck/internal/app"
	"github.com/tickerdeck/tickerdeck/internal/app/scheduler"
	"github.com/tickerdeck/tickerdeck/internal/cache"
	"github.com/tickerdeck/tickerdeck/internal/database"
	"github.com/tickerdeck/tickerdeck/internal/providers"
	"github.com/tickerdeck/tickerdeck/internal/providers/news"
	"github.com/tickerdeck/tickerdeck/internal/providers/prices"
	"github.com/tickerdeck/tickerdeck/internal/providers/sentiment"
	"github.com/tickerdeck/tickerdeck/internal/realtime"
	"github.com/tickerdeck/tickerdeck/internal/services"
	"github.com/tickerdeck/tickerdeck/internal/stream"
	"github.com/tickerdeck/tickerdeck/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tickerdeck-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	// Provider keys arrive via the environment; a missing one is a
	// start-up failure, never a silently degraded instance.
	if err := cfg.Validate(); err != nil {
		return err
	}

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	store := cache.NewDatabaseStore(db)
	loader, err := cache.NewLoader(store)
	if err != nil {
		return fmt.Errorf("initialise cache loader: %w", err)
	}

	syncCfg := services.SyncConfig{
		BatchSize:       cfg.Sync.BatchSize,
		PerPage:         cfg.Sync.PerPage,
		PageCap:         cfg.Sync.PageCap,
		InterBatchDelay: cfg.Sync.InterBatchDelay,
		CacheTTL:        cfg.Sync.CacheTTL,
	}

	priceSvc, err := services.NewPriceService(db, prices.New(providerConfig(cfg.Providers.Prices)), loader, syncCfg)
	if err != nil {
		return fmt.Errorf("initialise price service: %w", err)
	}
	sentimentSvc, err := services.NewSentimentService(db, sentiment.New(providerConfig(cfg.Providers.Sentiment)), loader, syncCfg)
	if err != nil {
		return fmt.Errorf("initialise sentiment service: %w", err)
	}
	newsSvc, err := services.NewNewsService(db, news.New(providerConfig(cfg.Providers.News)), syncCfg)
	if err != nil {
		return fmt.Errorf("initialise news service: %w", err)
	}
	symbolSvc, err := services.NewSymbolService(db)
	if err != nil {
		return fmt.Errorf("initialise symbol service: %w", err)
	}

	hub := realtime.NewHub()

	if cfg.Stream.Enabled {
		listener, listenerErr := stream.NewListener(stream.Config{
			URL:               cfg.Stream.URL,
			Symbols:           cfg.Stream.Symbols,
			ReconnectDelay:    cfg.Stream.ReconnectDelay,
			MaxReconnectDelay: cfg.Stream.MaxReconnectDelay,
			MaxReconnects:     cfg.Stream.MaxReconnects,
		}, db, hub)
		if listenerErr != nil {
			return fmt.Errorf("initialise stream listener: %w", listenerErr)
		}
		go func() {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("price stream stopped", zap.Error(err))
			}
		}()
	}

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(priceSvc, sentimentSvc, newsSvc, store,
			scheduler.WithMarketsSchedule(cfg.Scheduler.MarketsSchedule),
			scheduler.WithSentimentSchedule(cfg.Scheduler.SentimentSchedule),
			scheduler.WithNewsSchedule(cfg.Scheduler.NewsSchedule),
			scheduler.WithPruneSchedule(cfg.Scheduler.PruneSchedule),
			scheduler.WithCacheRetention(cfg.Sync.CacheRetention),
		)
		if err := sched.Start(); err != nil {
			return fmt.Errorf("start sync scheduler: %w", err)
		}
		defer func() {
			<-sched.Stop().Done()
		}()
	}

	router, err := api.NewRouter(cfg, api.Deps{
		DB:        db,
		Store:     store,
		Prices:    priceSvc,
		Sentiment: sentimentSvc,
		News:      newsSvc,
		Symbols:   symbolSvc,
		Hub:       hub,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func providerConfig(cfg app.ProviderConfig) providers.Config {
	return providers.Config{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = cfg.Database.Postgres.Password
	case "mysql", "mariadb":
		dbCfg.Driver = "mysql"
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = cfg.Database.MySQL.Password
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("acquire database handle for close", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
