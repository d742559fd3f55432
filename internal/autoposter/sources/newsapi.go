package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/RobinCoderZhao/portal-autopost/pkg/scraper"
)

// NewsAPIProvider queries a NewsAPI-compatible "everything" endpoint.
type NewsAPIProvider struct {
	baseURL  string
	apiKey   string
	language string
	client   *http.Client
	now      func() time.Time
}

// NewNewsAPIProvider creates a provider. baseURL defaults to https://newsapi.org/v2.
func NewNewsAPIProvider(baseURL, apiKey, language string) *NewsAPIProvider {
	if baseURL == "" {
		baseURL = "https://newsapi.org/v2"
	}
	if language == "" {
		language = "pt"
	}
	return &NewsAPIProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		language: language,
		client:   &http.Client{Timeout: 15 * time.Second},
		now:      time.Now,
	}
}

func (p *NewsAPIProvider) Name() string { return "newsapi" }

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

func (p *NewsAPIProvider) Search(ctx context.Context, category string, limit int) ([]Item, error) {
	q := url.Values{}
	q.Set("q", queryFor(category))
	q.Set("language", p.language)
	q.Set("sortBy", "publishedAt")
	q.Set("pageSize", strconv.Itoa(limit))
	q.Set("apiKey", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/everything?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", scraper.DefaultUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", category, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news provider returned %d for %s", resp.StatusCode, category)
	}

	var nr newsAPIResponse
	if err := json.Unmarshal(body, &nr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if nr.Status != "" && nr.Status != "ok" {
		return nil, fmt.Errorf("news provider error %s: %s", nr.Code, nr.Message)
	}

	fetchedAt := p.now()
	items := make([]Item, 0, len(nr.Articles))
	for _, a := range nr.Articles {
		title := strings.TrimSpace(a.Title)
		if title == "" || title == "[Removed]" {
			continue
		}
		published, err := time.Parse(time.RFC3339, a.PublishedAt)
		if err != nil {
			published = fetchedAt
		}
		items = append(items, Item{
			Title:          title,
			Description:    scraper.CleanSnippet(a.Description),
			URL:            a.URL,
			PublishedAt:    published,
			SourceCategory: category,
			Source:         a.Source.Name,
		})
		if len(items) == limit {
			break
		}
	}
	return items, nil
}
