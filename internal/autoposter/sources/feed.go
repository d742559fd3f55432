package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/RobinCoderZhao/portal-autopost/pkg/scraper"
)

// DefaultFeedTemplate searches Google News in Brazilian Portuguese. {query} is replaced
// by the URL-escaped category query.
const DefaultFeedTemplate = "https://news.google.com/rss/search?q={query}&hl=pt-BR&gl=BR&ceid=BR:pt-419"

// FeedProvider reads an RSS/Atom search feed per category.
type FeedProvider struct {
	template string
	parser   *gofeed.Parser
	now      func() time.Time
}

// NewFeedProvider creates a feed provider from a URL template containing {query}.
func NewFeedProvider(template string) *FeedProvider {
	if template == "" {
		template = DefaultFeedTemplate
	}
	fp := gofeed.NewParser()
	fp.UserAgent = scraper.DefaultUserAgent
	fp.Client = &http.Client{Timeout: 15 * time.Second}
	return &FeedProvider{template: template, parser: fp, now: time.Now}
}

func (f *FeedProvider) Name() string { return "feed" }

func (f *FeedProvider) Search(ctx context.Context, category string, limit int) ([]Item, error) {
	feedURL := strings.ReplaceAll(f.template, "{query}", url.QueryEscape(queryFor(category)))
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed for %s: %w", category, err)
	}

	fetchedAt := f.now()
	items := make([]Item, 0, limit)
	for _, it := range feed.Items {
		title := strings.TrimSpace(it.Title)
		if title == "" {
			continue
		}
		published := fetchedAt
		switch {
		case it.PublishedParsed != nil:
			published = *it.PublishedParsed
		case it.UpdatedParsed != nil:
			published = *it.UpdatedParsed
		}
		source := feed.Title
		if it.Author != nil && it.Author.Name != "" {
			source = it.Author.Name
		}
		items = append(items, Item{
			Title:          title,
			Description:    scraper.CleanSnippet(it.Description),
			URL:            it.Link,
			PublishedAt:    published,
			SourceCategory: category,
			Source:         source,
		})
		if len(items) == limit {
			break
		}
	}
	return items, nil
}
