// Package app wires the portal automation from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/analyzer"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/config"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/content"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/cycle"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/images"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/publisher"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/scheduler"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/sources"
	"github.com/RobinCoderZhao/portal-autopost/internal/user"
	"github.com/RobinCoderZhao/portal-autopost/pkg/llm"
	"github.com/RobinCoderZhao/portal-autopost/pkg/notify"
	"github.com/RobinCoderZhao/portal-autopost/pkg/scraper"
	"github.com/RobinCoderZhao/portal-autopost/pkg/storage"

	_ "modernc.org/sqlite"
)

// App holds every long-lived component of portalbot.
type App struct {
	Config    *config.Config
	DB        *storage.DB
	Profiles  *user.Store
	Posts     *content.Store
	Analyzer  *analyzer.Analyzer // nil when no LLM key is configured
	Runner    *cycle.Runner
	Scheduler *scheduler.Scheduler

	closers []func() error
}

// Open connects to the database and applies the schema.
func Open(ctx context.Context, cfg *config.Config) (*storage.DB, error) {
	db, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, user.Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate profiles: %w", err)
	}
	if err := content.NewStore(db).Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate content: %w", err)
	}
	return db, nil
}

// New builds the application. ctx bounds the scheduler's cycles.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{
		Config:   cfg,
		DB:       db,
		Profiles: user.NewStore(db),
		Posts:    content.NewStore(db),
		closers:  []func() error{db.Close},
	}

	provider, err := newsProvider(cfg.News)
	if err != nil {
		a.Close()
		return nil, err
	}
	fetcher := sources.NewFetcher(provider, cfg.News.Fetch)

	var an cycle.Analyzer = unconfiguredAnalyzer{}
	if cfg.LLM.APIKey != "" {
		client, err := llm.NewClient(cfg.LLM)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create LLM client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.Analyzer = analyzer.NewAnalyzer(client)
		an = a.Analyzer
	} else {
		slog.Warn("LLM API key not set, cycles will publish without AI analysis")
	}

	dispatcher, err := a.dispatcher(cfg.Notify)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []cycle.Option{
		cycle.WithConfig(cfg.Cycle),
		cycle.WithAnnouncer(publisher.NewPublisher(dispatcher, cfg.Notify.SiteURL)),
	}
	if cfg.Cycle.ReadSources {
		opts = append(opts, cycle.WithArticleReader(scraper.NewReader(cfg.Images.Timeout, 6000)))
	}
	gateway := content.NewGateway(a.Posts, a.Profiles)
	a.Runner = cycle.NewRunner(gateway, fetcher, an, a.imageResolver(), opts...)

	interval := cfg.Scheduler.Interval
	if interval <= 0 {
		interval = scheduler.IntervalFor(cfg.Environment)
	}
	a.Scheduler = scheduler.New(ctx, a.Runner, interval)
	return a, nil
}

// Close stops the scheduler and releases resources in reverse order.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newsProvider(cfg config.NewsConfig) (sources.Provider, error) {
	switch cfg.Provider {
	case "feed":
		return sources.NewFeedProvider(cfg.FeedTemplate), nil
	case "newsapi", "":
		if cfg.APIKey == "" {
			slog.Warn("NEWS_API_KEY not set, news provider calls will fail and fallback items will be used")
		}
		return sources.NewNewsAPIProvider(cfg.BaseURL, cfg.APIKey, cfg.Language), nil
	default:
		return nil, fmt.Errorf("unknown news provider %q", cfg.Provider)
	}
}

func (a *App) imageResolver() *images.Resolver {
	cfg := a.Config.Images
	search := images.NewUnsplash(cfg.UnsplashURL, cfg.UnsplashKey).Strategy()

	chain := []images.Strategy{images.ExistingPosts(a.Posts)}
	if cfg.SourcePage {
		chain = append(chain, images.SourcePage(cfg.Timeout))
	}
	if cfg.AISuggestion && a.Analyzer != nil {
		chain = append(chain, images.AISuggestion(a.Analyzer, &search))
	}
	chain = append(chain, search, images.Placeholder())
	return images.NewResolver(chain...)
}

func (a *App) dispatcher(cfg config.NotifyConfig) (*notify.Dispatcher, error) {
	d := notify.NewDispatcher()
	if cfg.Webhook.URL != "" {
		d.Register(notify.NewWebhookNotifier(cfg.Webhook))
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChannelID != "" {
		d.Register(notify.NewTelegramNotifier(cfg.Telegram))
	}
	if cfg.Kafka.Brokers != "" {
		k, err := notify.NewKafkaNotifier(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		d.Register(k)
		a.closers = append(a.closers, k.Close)
	}
	return d, nil
}

// unconfiguredAnalyzer stands in when no LLM key is set, so every cycle
// takes the degraded path.
type unconfiguredAnalyzer struct{}

func (unconfiguredAnalyzer) AnalyzeNews(ctx context.Context, rawText, sourceURL string) (*analyzer.Analysis, error) {
	return nil, fmt.Errorf("%w: no LLM API key configured", llm.ErrProviderUnavailable)
}
