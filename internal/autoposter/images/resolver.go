// Package images resolves an illustrative image URL for a post through an
// ordered chain of strategies.
package images

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Query describes the post an image is wanted for.
type Query struct {
	Title     string
	Category  string
	Hint      string // search terms; defaults to title + category
	SourceURL string
	NoAI      bool // skip strategies that call the language model
}

// Terms returns the search terms for q.
func (q Query) Terms() string {
	if h := strings.TrimSpace(q.Hint); h != "" {
		return h
	}
	return strings.TrimSpace(q.Title + " " + q.Category)
}

// Strategy is one step of the chain. Resolve may return "" or an error to pass.
type Strategy struct {
	Name    string
	Resolve func(ctx context.Context, q Query) (string, error)
}

// FirstSuccess tries steps in order and returns the first result accepted by valid.
// It reports the index of the winning step, or -1 when none succeeded.
func FirstSuccess[Q, R any](ctx context.Context, q Q, steps []func(context.Context, Q) (R, error), valid func(R) bool) (R, int) {
	var zero R
	for i, step := range steps {
		if ctx.Err() != nil {
			break
		}
		r, err := step(ctx, q)
		if err != nil || !valid(r) {
			continue
		}
		return r, i
	}
	return zero, -1
}

// Resolver runs the strategy chain. It never fails; "" means no image.
type Resolver struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewResolver creates a resolver over strategies, tried in the given order.
func NewResolver(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies, logger: slog.Default()}
}

// ResolveImage resolves an image for a title and category.
func (r *Resolver) ResolveImage(ctx context.Context, title, category string) string {
	return r.Resolve(ctx, Query{Title: title, Category: category})
}

// Resolve returns the first valid http(s) URL produced by the chain, or "".
func (r *Resolver) Resolve(ctx context.Context, q Query) string {
	steps := make([]func(context.Context, Query) (string, error), len(r.strategies))
	for i, s := range r.strategies {
		s := s
		steps[i] = func(ctx context.Context, q Query) (string, error) {
			u, err := s.Resolve(ctx, q)
			if err != nil {
				r.logger.Debug("image strategy failed", "strategy", s.Name, "error", err)
			}
			return strings.TrimSpace(u), err
		}
	}
	u, idx := FirstSuccess(ctx, q, steps, IsHTTPURL)
	if idx < 0 {
		return ""
	}
	r.logger.Info("image resolved", "strategy", r.strategies[idx].Name, "url", u)
	return u
}

// IsHTTPURL reports whether s is an absolute http or https URL with a host.
func IsHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// PlaceholderURLTemplate receives a hex seed and yields a stable stock image.
const PlaceholderURLTemplate = "https://picsum.photos/seed/%s/1200/630"

// PlaceholderURL derives a deterministic placeholder from terms.
func PlaceholderURL(terms string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(terms))))
	return fmt.Sprintf(PlaceholderURLTemplate, hex.EncodeToString(sum[:8]))
}

// Placeholder is the last-resort strategy: it always yields an image.
func Placeholder() Strategy {
	return Strategy{
		Name: "placeholder",
		Resolve: func(ctx context.Context, q Query) (string, error) {
			return PlaceholderURL(q.Terms()), nil
		},
	}
}
