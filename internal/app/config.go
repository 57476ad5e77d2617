package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the TickerDeck backend.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	LogLevel  string          `mapstructure:"log_level"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds per-client request rates on the public API.
type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// ProvidersConfig groups the upstream data feed settings.
type ProvidersConfig struct {
	Prices    ProviderConfig `mapstructure:"prices"`
	Sentiment ProviderConfig `mapstructure:"sentiment"`
	News      ProviderConfig `mapstructure:"news"`
}

// ProviderConfig holds the connection settings for one upstream feed. API
// keys have no defaults and are expected to arrive via the environment
// (TICKERDECK_PROVIDERS_PRICES_API_KEY and friends).
type ProviderConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// SyncConfig bounds snapshot synchronisation runs.
type SyncConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	PerPage         int           `mapstructure:"per_page"`
	PageCap         int           `mapstructure:"page_cap"`
	InterBatchDelay time.Duration `mapstructure:"inter_batch_delay"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CacheRetention  time.Duration `mapstructure:"cache_retention"`
}

// StreamConfig configures the live exchange price feed.
type StreamConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	URL               string        `mapstructure:"url"`
	Symbols           []string      `mapstructure:"symbols"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay"`
	MaxReconnects     int           `mapstructure:"max_reconnects"`
}

// SchedulerConfig controls the background sync jobs.
type SchedulerConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	MarketsSchedule   string `mapstructure:"markets_schedule"`
	SentimentSchedule string `mapstructure:"sentiment_schedule"`
	NewsSchedule      string `mapstructure:"news_schedule"`
	PruneSchedule     string `mapstructure:"prune_schedule"`
}

// AdminConfig guards the manual sync and diagnostics endpoints. The token has
// no default and must come from the environment (TICKERDECK_ADMIN_TOKEN).
type AdminConfig struct {
	Token string `mapstructure:"token"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("TICKERDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// Validate rejects configurations that cannot start. Provider API keys are
// required because every outbound adapter refuses to call without one, and a
// missing key must fail loudly at boot rather than at the first sync.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	required := []struct {
		key   string
		value string
	}{
		{"providers.prices.api_key", c.Providers.Prices.APIKey},
		{"providers.sentiment.api_key", c.Providers.Sentiment.APIKey},
		{"providers.news.api_key", c.Providers.News.APIKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("config: %s is required (set %s)", r.key, envKeyFor(r.key))
		}
	}
	return nil
}

func envKeyFor(key string) string {
	return "TICKERDECK_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.max_requests", 100)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/tickerdeck.sqlite")

	v.SetDefault("providers.prices.base_url", "https://pro-api.coingecko.com/api/v3")
	v.SetDefault("providers.prices.timeout", "15s")
	v.SetDefault("providers.prices.requests_per_second", 0.5)
	v.SetDefault("providers.sentiment.base_url", "https://lunarcrush.com/api4")
	v.SetDefault("providers.sentiment.timeout", "15s")
	v.SetDefault("providers.sentiment.requests_per_second", 0.2)
	v.SetDefault("providers.news.base_url", "https://cryptopanic.com/api/v1")
	v.SetDefault("providers.news.timeout", "15s")
	v.SetDefault("providers.news.requests_per_second", 0.2)

	v.SetDefault("sync.batch_size", 500)
	v.SetDefault("sync.per_page", 100)
	v.SetDefault("sync.page_cap", 5)
	v.SetDefault("sync.inter_batch_delay", "250ms")
	v.SetDefault("sync.cache_ttl", "5m")
	v.SetDefault("sync.cache_retention", "168h") // 7 days

	v.SetDefault("stream.enabled", false)
	v.SetDefault("stream.url", "wss://stream.binance.com:9443/ws")
	v.SetDefault("stream.symbols", "BTC,ETH,SOL")
	v.SetDefault("stream.reconnect_delay", "1s")
	v.SetDefault("stream.max_reconnect_delay", "30s")
	v.SetDefault("stream.max_reconnects", 0)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.markets_schedule", "@every 5m")
	v.SetDefault("scheduler.sentiment_schedule", "@hourly")
	v.SetDefault("scheduler.news_schedule", "@every 10m")
	v.SetDefault("scheduler.prune_schedule", "@daily")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
