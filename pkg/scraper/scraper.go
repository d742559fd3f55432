// Package scraper provides HTTP article fetching and HTML text utilities.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// DefaultUserAgent identifies the portal's fetchers.
const DefaultUserAgent = "PortalAutopost/1.0 (+https://github.com/RobinCoderZhao/portal-autopost)"

// Article is the readable part of a web page.
type Article struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Image     string    `json:"image,omitempty"`
	SiteName  string    `json:"site_name,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Reader fetches pages and extracts their main article text.
type Reader struct {
	client    *http.Client
	userAgent string
	maxChars  int
}

// NewReader creates a Reader. maxChars caps the returned text (0 = no cap).
func NewReader(timeout time.Duration, maxChars int) *Reader {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Reader{
		client:    &http.Client{Timeout: timeout},
		userAgent: DefaultUserAgent,
		maxChars:  maxChars,
	}
}

// Read downloads rawURL and runs readability over it.
func (r *Reader) Read(ctx context.Context, rawURL string) (*Article, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	doc, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return nil, fmt.Errorf("extract article: %w", err)
	}

	text := CollapseSpace(doc.TextContent)
	if r.maxChars > 0 {
		text = Truncate(text, r.maxChars)
	}
	return &Article{
		URL:       rawURL,
		Title:     strings.TrimSpace(doc.Title),
		Text:      text,
		Image:     doc.Image,
		SiteName:  doc.SiteName,
		FetchedAt: time.Now(),
	}, nil
}

// ExtractText converts HTML to clean structured text, removing navigation/footer/scripts.
func ExtractText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return htmlContent
	}

	var sb strings.Builder
	extractTextFromNode(doc, &sb, map[string]bool{
		"script": true, "style": true, "nav": true, "footer": true,
		"header": true, "noscript": true, "svg": true, "iframe": true,
	})
	return strings.TrimSpace(sb.String())
}

// CleanSnippet strips markup from a short provider snippet (feed descriptions)
// and returns it on a single line.
func CleanSnippet(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return CollapseSpace(s)
	}
	return CollapseSpace(ExtractText(s))
}

// CollapseSpace joins all whitespace runs into single spaces.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func extractTextFromNode(n *html.Node, sb *strings.Builder, skipTags map[string]bool) {
	if n.Type == html.ElementNode {
		if skipTags[n.Data] {
			return
		}
		switch n.Data {
		case "h1":
			sb.WriteString("\n# ")
		case "h2":
			sb.WriteString("\n## ")
		case "h3":
			sb.WriteString("\n### ")
		case "li":
			sb.WriteString("- ")
		case "br", "p", "div", "tr":
			sb.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractTextFromNode(c, sb, skipTags)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2", "h3", "p", "li", "tr":
			sb.WriteString("\n")
		}
	}
}
