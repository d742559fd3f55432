// Package config holds the portal automation configuration.
package config

import (
	"fmt"
	"time"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/cycle"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/sources"
	appconfig "github.com/RobinCoderZhao/portal-autopost/pkg/config"
	"github.com/RobinCoderZhao/portal-autopost/pkg/llm"
	"github.com/RobinCoderZhao/portal-autopost/pkg/logging"
	"github.com/RobinCoderZhao/portal-autopost/pkg/notify"
	"github.com/RobinCoderZhao/portal-autopost/pkg/storage"
)

// Config is the whole portalbot configuration.
type Config struct {
	Environment string          `yaml:"environment" json:"environment" env:"APP_ENV"`
	Log         logging.Config  `yaml:"log" json:"log"`
	LLM         llm.Config      `yaml:"llm" json:"llm"`
	News        NewsConfig      `yaml:"news" json:"news"`
	Images      ImagesConfig    `yaml:"images" json:"images"`
	Cycle       cycle.Config    `yaml:"cycle" json:"cycle"`
	Database    storage.Config  `yaml:"database" json:"database"`
	API         APIConfig       `yaml:"api" json:"api"`
	Notify      NotifyConfig    `yaml:"notify" json:"notify"`
	Scheduler   SchedulerConfig `yaml:"scheduler" json:"scheduler"`
}

// NewsConfig selects and configures the news provider.
type NewsConfig struct {
	Provider     string                `yaml:"provider" json:"provider" env:"NEWS_PROVIDER"` // "newsapi" or "feed"
	BaseURL      string                `yaml:"base_url" json:"base_url" env:"NEWS_API_URL"`
	APIKey       string                `yaml:"api_key" json:"-" env:"NEWS_API_KEY"`
	Language     string                `yaml:"language" json:"language"`
	FeedTemplate string                `yaml:"feed_template" json:"feed_template"`
	Fetch        sources.FetcherConfig `yaml:"fetch" json:"fetch"`
}

// ImagesConfig configures the image resolver chain.
type ImagesConfig struct {
	UnsplashURL  string        `yaml:"unsplash_url" json:"unsplash_url"`
	UnsplashKey  string        `yaml:"unsplash_key" json:"-" env:"UNSPLASH_ACCESS_KEY"`
	SourcePage   bool          `yaml:"source_page" json:"source_page" env:"IMAGES_SOURCE_PAGE"`
	AISuggestion bool          `yaml:"ai_suggestion" json:"ai_suggestion"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
}

// APIConfig configures the admin HTTP API.
type APIConfig struct {
	Addr       string        `yaml:"addr" json:"addr" env:"API_ADDR"`
	JWTSecret  string        `yaml:"jwt_secret" json:"-" env:"JWT_SECRET"`
	CORSOrigin string        `yaml:"cors_origin" json:"cors_origin" env:"CORS_ORIGIN"`
	TokenTTL   time.Duration `yaml:"token_ttl" json:"token_ttl"`
}

// NotifyConfig lists the channels used to announce published posts.
// A channel is enabled when its address is set.
type NotifyConfig struct {
	SiteURL  string                `yaml:"site_url" json:"site_url" env:"SITE_URL"`
	Webhook  notify.WebhookConfig  `yaml:"webhook" json:"webhook"`
	Telegram notify.TelegramConfig `yaml:"telegram" json:"telegram"`
	Kafka    notify.KafkaConfig    `yaml:"kafka" json:"kafka"`
}

// SchedulerConfig controls the automation timer.
type SchedulerConfig struct {
	Autostart bool          `yaml:"autostart" json:"autostart" env:"AUTOMATION_AUTOSTART"`
	Interval  time.Duration `yaml:"interval" json:"interval"` // 0 = derived from environment
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Environment: "development",
		Log:         logging.Config{Level: "info", Format: "text"},
		LLM:         llm.DefaultConfig(),
		News: NewsConfig{
			Provider: "newsapi",
			BaseURL:  "https://newsapi.org/v2",
			Language: "pt",
			Fetch:    sources.DefaultFetcherConfig(),
		},
		Images: ImagesConfig{
			UnsplashURL:  "https://api.unsplash.com",
			AISuggestion: true,
			Timeout:      10 * time.Second,
		},
		Cycle:    cycle.DefaultConfig(),
		Database: storage.Config{Driver: storage.SQLite, DSN: "portal.db"},
		API: APIConfig{
			Addr:       ":8080",
			CORSOrigin: "*",
			TokenTTL:   24 * time.Hour,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := appconfig.LoadOrDefault(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a cycle.
func (c *Config) Validate() error {
	switch c.News.Provider {
	case "newsapi", "feed":
	default:
		return fmt.Errorf("config: unknown news provider %q", c.News.Provider)
	}
	if c.Database.Driver != storage.SQLite {
		return fmt.Errorf("config: database driver %q is not built in, use %q", c.Database.Driver, storage.SQLite)
	}
	return nil
}

// IsProduction reports whether the production schedule applies.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
