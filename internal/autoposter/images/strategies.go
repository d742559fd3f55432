package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/content"
	"github.com/RobinCoderZhao/portal-autopost/pkg/scraper"
)

// PostImageFinder looks up images of already-published posts.
type PostImageFinder interface {
	FindPostImage(ctx context.Context, category, titleFragment string) (string, error)
}

// ExistingPosts reuses the image of a post with a similar title, or the latest
// post of the same category.
func ExistingPosts(store PostImageFinder) Strategy {
	return Strategy{
		Name: "existing_posts",
		Resolve: func(ctx context.Context, q Query) (string, error) {
			return store.FindPostImage(ctx, q.Category, content.TitleFragment(q.Title))
		},
	}
}

// Suggester proposes an image URL or a SEARCH: directive for a post.
type Suggester interface {
	SuggestImage(ctx context.Context, title, category string) (string, error)
}

// AISuggestion asks the model for an image. A "SEARCH:" answer is handed to
// search with the suggested terms.
func AISuggestion(s Suggester, search *Strategy) Strategy {
	return Strategy{
		Name: "ai_suggestion",
		Resolve: func(ctx context.Context, q Query) (string, error) {
			if q.NoAI {
				return "", nil
			}
			answer, err := s.SuggestImage(ctx, q.Title, q.Category)
			if err != nil {
				return "", err
			}
			terms, ok := strings.CutPrefix(answer, "SEARCH:")
			if !ok {
				return answer, nil
			}
			if search == nil {
				return "", errors.New("no search strategy for suggested terms")
			}
			q.Hint = strings.TrimSpace(terms)
			return search.Resolve(ctx, q)
		},
	}
}

// Unsplash searches the Unsplash photo API by keyword.
type Unsplash struct {
	BaseURL   string
	AccessKey string
	client    *http.Client
}

// NewUnsplash creates an Unsplash search client.
func NewUnsplash(baseURL, accessKey string) *Unsplash {
	if baseURL == "" {
		baseURL = "https://api.unsplash.com"
	}
	return &Unsplash{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		AccessKey: accessKey,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type unsplashResponse struct {
	Results []struct {
		URLs struct {
			Regular string `json:"regular"`
		} `json:"urls"`
	} `json:"results"`
}

// Search returns the first landscape photo matching terms.
func (u *Unsplash) Search(ctx context.Context, terms string) (string, error) {
	if u.AccessKey == "" {
		return "", errors.New("unsplash: no access key")
	}
	params := url.Values{}
	params.Set("query", terms)
	params.Set("per_page", "1")
	params.Set("orientation", "landscape")
	params.Set("client_id", u.AccessKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.BaseURL+"/search/photos?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("unsplash: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unsplash: status %d", resp.StatusCode)
	}

	var data unsplashResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("unsplash: decode: %w", err)
	}
	if len(data.Results) == 0 {
		return "", nil
	}
	return data.Results[0].URLs.Regular, nil
}

// Strategy returns u as a keyword-search strategy.
func (u *Unsplash) Strategy() Strategy {
	return Strategy{
		Name: "unsplash",
		Resolve: func(ctx context.Context, q Query) (string, error) {
			return u.Search(ctx, q.Terms())
		},
	}
}

// SourcePage reads og:image or twitter:image from the article's own page.
func SourcePage(timeout time.Duration) Strategy {
	client := &http.Client{Timeout: timeout}
	return Strategy{
		Name: "source_page",
		Resolve: func(ctx context.Context, q Query) (string, error) {
			if !IsHTTPURL(q.SourceURL) {
				return "", nil
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.SourceURL, nil)
			if err != nil {
				return "", err
			}
			req.Header.Set("User-Agent", scraper.DefaultUserAgent)
			resp, err := client.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("source page: status %d", resp.StatusCode)
			}
			doc, err := goquery.NewDocumentFromReader(resp.Body)
			if err != nil {
				return "", err
			}
			return metaImage(doc, resp.Request.URL), nil
		},
	}
}

func metaImage(doc *goquery.Document, base *url.URL) string {
	selectors := []string{
		`meta[property="og:image"]`,
		`meta[name="og:image"]`,
		`meta[name="twitter:image"]`,
		`meta[property="twitter:image"]`,
	}
	for _, sel := range selectors {
		v, ok := doc.Find(sel).First().Attr("content")
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			continue
		}
		ref, err := url.Parse(v)
		if err != nil {
			continue
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		return ref.String()
	}
	return ""
}
