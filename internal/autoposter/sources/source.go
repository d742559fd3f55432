// Package sources fetches candidate news items per editorial category.
package sources

import (
	"context"
	"time"
)

// Item is a candidate news item. It lives for one automation cycle and is never stored.
type Item struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	URL            string    `json:"url"`
	PublishedAt    time.Time `json:"published_at"`
	SourceCategory string    `json:"source_category"`
	Source         string    `json:"source,omitempty"`
}

// Provider searches an external news service for one category.
type Provider interface {
	// Name returns the human-readable name of the provider.
	Name() string

	// Search returns at most limit items for category. A non-success answer is an error.
	Search(ctx context.Context, category string, limit int) ([]Item, error)
}

// queryFor maps a category onto the search terms sent to providers.
func queryFor(category string) string {
	if q, ok := categoryQueries[category]; ok {
		return q
	}
	return category
}

var categoryQueries = map[string]string{
	"Política":       "política Brasil",
	"Economia":       "economia Brasil",
	"Esportes":       "esportes futebol",
	"Tecnologia":     "tecnologia",
	"Saúde":          "saúde",
	"Educação":       "educação",
	"Cultura":        "cultura",
	"Entretenimento": "entretenimento famosos",
	"Internacional":  "mundo internacional",
	"Ciência":        "ciência pesquisa",
	"Meio Ambiente":  "meio ambiente clima",
	"Segurança":      "segurança pública",
}
