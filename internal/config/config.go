// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Store     StoreConfig     `mapstructure:"store"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Collector CollectorConfig `mapstructure:"collector"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Review    ReviewConfig    `mapstructure:"review"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// QueueConfig selects and configures the work queue backend.
type QueueConfig struct {
	Backend string `mapstructure:"backend"`
	URL     string `mapstructure:"url"`
	Region  string `mapstructure:"region"`
}

// StoreConfig selects and configures the record store backend. Endpoint
// points the client at a local DynamoDB when set.
type StoreConfig struct {
	Backend  string `mapstructure:"backend"`
	Table    string `mapstructure:"table"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// ArchiveConfig configures raw snapshot storage.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	Region  string `mapstructure:"region"`
}

// FetcherConfig selects the detail-page fetcher.
type FetcherConfig struct {
	Provider       string `mapstructure:"provider"`
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Country        string `mapstructure:"country"`
	// Headless fallback knobs, used when provider is "headless".
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	UserAgent     string `mapstructure:"user_agent"`
}

// CollectorConfig governs the batch claim loop.
type CollectorConfig struct {
	MaxBatches          int    `mapstructure:"max_batches"`
	MaxMessagesPerBatch int    `mapstructure:"max_messages_per_batch"`
	MaxRetries          int    `mapstructure:"max_retries"`
	VisibilitySeconds   int    `mapstructure:"visibility_seconds"`
	WaitSeconds         int    `mapstructure:"wait_seconds"`
	StopOnPartialBatch  bool   `mapstructure:"stop_on_partial_batch"`
	PlaceholderTitle    string `mapstructure:"placeholder_title"`
}

// DiscoveryConfig governs the listing crawl.
type DiscoveryConfig struct {
	StartURLs      []string  `mapstructure:"start_urls"`
	AllowedDomains []string  `mapstructure:"allowed_domains"`
	UserAgent      string    `mapstructure:"user_agent"`
	MaxPages       int       `mapstructure:"max_pages"`
	MaxItems       int       `mapstructure:"max_items"`
	DelaySeconds   int       `mapstructure:"delay_seconds"`
	Selectors      Selectors `mapstructure:"selectors"`
}

// Selectors holds the CSS selectors for the listing page layout.
type Selectors struct {
	Card          string `mapstructure:"card"`
	Title         string `mapstructure:"title"`
	CurrentPrice  string `mapstructure:"current_price"`
	OriginalPrice string `mapstructure:"original_price"`
	PubURL        string `mapstructure:"pub_url"`
	Seller        string `mapstructure:"seller"`
	Brand         string `mapstructure:"brand"`
	Rating        string `mapstructure:"rating"`
	Reviews       string `mapstructure:"reviews"`
	NextPage      string `mapstructure:"next_page"`
}

// LedgerConfig controls run bookkeeping.
type LedgerConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// ReviewConfig controls the advisory reviewer.
type ReviewConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.region", "us-east-1")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.region", "us-east-1")
	v.SetDefault("store.table", "products")
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("fetcher.provider", "headless")
	v.SetDefault("fetcher.timeout_seconds", 60)
	v.SetDefault("fetcher.country", "uy")
	v.SetDefault("fetcher.max_parallel", 1)
	v.SetDefault("fetcher.nav_timeout_seconds", 45)
	v.SetDefault("collector.max_batches", 50)
	v.SetDefault("collector.max_messages_per_batch", 10)
	v.SetDefault("collector.max_retries", 3)
	v.SetDefault("collector.visibility_seconds", 300)
	v.SetDefault("collector.wait_seconds", 2)
	v.SetDefault("collector.stop_on_partial_batch", true)
	v.SetDefault("discovery.max_pages", 20)
	v.SetDefault("discovery.max_items", 2000)
	v.SetDefault("discovery.delay_seconds", 1)
	v.SetDefault("discovery.start_urls", []string{"https://www.mercadolibre.com.uy/ofertas"})
	v.SetDefault("discovery.allowed_domains", []string{"www.mercadolibre.com.uy"})
	// Matches the marketplace's current "poly card" offer listing layout.
	v.SetDefault("discovery.selectors.card", "div.poly-card")
	v.SetDefault("discovery.selectors.title", "a.poly-component__title")
	v.SetDefault("discovery.selectors.current_price", ".poly-price__current .andes-money-amount__fraction")
	v.SetDefault("discovery.selectors.original_price", "s.andes-money-amount--previous .andes-money-amount__fraction")
	v.SetDefault("discovery.selectors.pub_url", "a.poly-component__title")
	v.SetDefault("discovery.selectors.seller", "span.poly-component__seller")
	v.SetDefault("discovery.selectors.brand", "span.poly-component__brand")
	v.SetDefault("discovery.selectors.rating", "span.poly-reviews__rating")
	v.SetDefault("discovery.selectors.reviews", "span.poly-reviews__total")
	v.SetDefault("discovery.selectors.next_page", "li.andes-pagination__button--next a")
	v.SetDefault("ledger.backend", "none")
	v.SetDefault("ledger.table", "harvest_runs")
	v.SetDefault("review.enabled", false)
	v.SetDefault("review.timeout_seconds", 10)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Collector.MaxBatches <= 0 {
		return fmt.Errorf("collector.max_batches must be > 0")
	}
	if c.Collector.MaxMessagesPerBatch <= 0 {
		return fmt.Errorf("collector.max_messages_per_batch must be > 0")
	}
	if c.Collector.MaxRetries < 0 {
		return fmt.Errorf("collector.max_retries must be >= 0")
	}
	switch c.Queue.Backend {
	case "memory":
	case "sqs":
		if c.Queue.URL == "" {
			return fmt.Errorf("queue.url is required for the sqs backend")
		}
	default:
		return fmt.Errorf("unknown queue.backend %q", c.Queue.Backend)
	}
	switch c.Store.Backend {
	case "memory":
	case "dynamodb":
		if c.Store.Table == "" {
			return fmt.Errorf("store.table is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	switch c.Archive.Backend {
	case "none", "memory":
	case "s3":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown archive.backend %q", c.Archive.Backend)
	}
	switch c.Fetcher.Provider {
	case "headless":
	case "scrapefly":
		if c.Fetcher.BaseURL == "" || c.Fetcher.APIKey == "" {
			return fmt.Errorf("fetcher.base_url and fetcher.api_key are required for the scrapefly provider")
		}
	default:
		return fmt.Errorf("unknown fetcher.provider %q", c.Fetcher.Provider)
	}
	switch c.Ledger.Backend {
	case "none":
	case "postgres":
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown ledger.backend %q", c.Ledger.Backend)
	}
	if c.Review.Enabled && c.Review.APIKey == "" {
		return fmt.Errorf("review.api_key must be set when review is enabled")
	}
	return nil
}

// FetchTimeout converts the fetcher timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

// VisibilityWindow converts the collector visibility setting into a duration.
func (c Config) VisibilityWindow() time.Duration {
	return time.Duration(c.Collector.VisibilitySeconds) * time.Second
}

// ClaimWait converts the collector wait setting into a duration.
func (c Config) ClaimWait() time.Duration {
	return time.Duration(c.Collector.WaitSeconds) * time.Second
}
