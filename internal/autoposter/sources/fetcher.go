package sources

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/content"
	"github.com/RobinCoderZhao/portal-autopost/pkg/pacing"
)

// SyntheticURLPrefix marks fallback items that did not come from a provider.
const SyntheticURLPrefix = "https://fallback.portal.local/noticias/"

// IsSynthetic reports whether rawURL belongs to a built-in fallback item.
func IsSynthetic(rawURL string) bool {
	return strings.HasPrefix(rawURL, SyntheticURLPrefix)
}

// FetcherConfig bounds how much a single fetch may ask of the provider.
type FetcherConfig struct {
	MaxCategories int           `yaml:"max_categories"`
	PerCategory   int           `yaml:"per_category"`
	MaxItems      int           `yaml:"max_items"`
	Pacing        time.Duration `yaml:"pacing"`
	Freshness     time.Duration `yaml:"freshness"`
}

// DefaultFetcherConfig returns the provider-friendly limits.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		MaxCategories: 3,
		PerCategory:   10,
		MaxItems:      10,
		Pacing:        time.Second,
		Freshness:     24 * time.Hour,
	}
}

// Fetcher collects recent candidate items from a Provider.
type Fetcher struct {
	provider Provider
	cfg      FetcherConfig
	logger   *slog.Logger
	now      func() time.Time
	sleep    pacing.SleepFunc
}

// NewFetcher creates a fetcher. Zero config values fall back to the defaults.
func NewFetcher(provider Provider, cfg FetcherConfig) *Fetcher {
	def := DefaultFetcherConfig()
	if cfg.MaxCategories <= 0 {
		cfg.MaxCategories = def.MaxCategories
	}
	if cfg.PerCategory <= 0 {
		cfg.PerCategory = def.PerCategory
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = def.MaxItems
	}
	if cfg.Pacing <= 0 {
		cfg.Pacing = def.Pacing
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = def.Freshness
	}
	return &Fetcher{
		provider: provider,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
		sleep:    pacing.Sleep,
	}
}

// FetchRecentNews queries the first categories in order, one call at a time, and
// returns at most MaxItems items published within the freshness window.
// Provider failures yield no items for that category and are only logged.
func (f *Fetcher) FetchRecentNews(ctx context.Context, categories []string) []Item {
	queried := categories
	if len(queried) > f.cfg.MaxCategories {
		queried = queried[:f.cfg.MaxCategories]
	}

	var all []Item
	for i, category := range queried {
		if i > 0 {
			if err := f.sleep(ctx, f.cfg.Pacing); err != nil {
				f.logger.Warn("news fetch interrupted", "error", err)
				break
			}
		}
		items, err := f.provider.Search(ctx, category, f.cfg.PerCategory)
		if err != nil {
			f.logger.Warn("news provider failed, skipping category",
				"provider", f.provider.Name(), "category", category, "error", err)
			continue
		}
		if len(items) > f.cfg.PerCategory {
			items = items[:f.cfg.PerCategory]
		}
		f.logger.Info("fetched news", "provider", f.provider.Name(), "category", category, "count", len(items))
		all = append(all, items...)
	}

	now := f.now()
	if len(all) == 0 {
		rest := categories[len(queried):]
		if len(rest) == 0 {
			rest = queried
		}
		all = fallbackItems(rest, now)
		f.logger.Warn("news provider returned nothing, using built-in items", "count", len(all))
	}

	cutoff := now.Add(-f.cfg.Freshness)
	fresh := make([]Item, 0, len(all))
	for _, it := range all {
		if it.PublishedAt.Before(cutoff) {
			continue
		}
		fresh = append(fresh, it)
		if len(fresh) == f.cfg.MaxItems {
			break
		}
	}
	return fresh
}

func fallbackItems(categories []string, now time.Time) []Item {
	items := make([]Item, 0, len(categories))
	for _, c := range categories {
		items = append(items, Item{
			Title:          fmt.Sprintf("Destaques de %s: acompanhe as últimas atualizações", c),
			Description:    fmt.Sprintf("Resumo das principais notícias de %s no Brasil e no mundo nas últimas horas.", strings.ToLower(c)),
			URL:            SyntheticURLPrefix + content.Slugify(c),
			PublishedAt:    now,
			SourceCategory: c,
			Source:         "fallback",
		})
	}
	return items
}
