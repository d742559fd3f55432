// Package analyzer turns raw news text into a publishable analysis using an LLM.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/content"
	"github.com/RobinCoderZhao/portal-autopost/pkg/llm"
)

// ErrMalformedResponse means the model answer held no parsable JSON object.
var ErrMalformedResponse = errors.New("analyzer: malformed model response")

// SearchDirective prefixes image suggestions that are search terms instead of a URL.
const SearchDirective = "SEARCH:"

// Analysis is the structured result for one candidate item.
type Analysis struct {
	Title             string `json:"title"`
	Excerpt           string `json:"excerpt"`
	Body              string `json:"content"`
	Category          string `json:"category"`
	IsUrgent          bool   `json:"isUrgent"`
	ImageSearchHint   string `json:"imageSearchTerms"`
	SuggestedImageURL string `json:"suggestedImageUrl,omitempty"`
}

// Analyzer wraps an llm.Client with the portal's prompts.
type Analyzer struct {
	client llm.Client
}

// NewAnalyzer creates a new analyzer with the given LLM client.
func NewAnalyzer(client llm.Client) *Analyzer {
	return &Analyzer{client: client}
}

// AnalyzeNews rewrites rawText as a portal article. Provider failures are
// returned unchanged so callers can inspect them with errors.Is/As.
func (a *Analyzer) AnalyzeNews(ctx context.Context, rawText, sourceURL string) (*Analysis, error) {
	var sb strings.Builder
	sb.WriteString("Notícia original:\n")
	sb.WriteString(strings.TrimSpace(rawText))
	if sourceURL != "" {
		sb.WriteString("\n\nFonte: ")
		sb.WriteString(sourceURL)
	}

	resp, err := a.client.Generate(ctx, &llm.Request{
		System:   fmt.Sprintf(analyzePrompt, strings.Join(content.Categories, ", ")),
		Messages: []llm.Message{{Role: "user", Content: sb.String()}},
	})
	if err != nil {
		return nil, err
	}
	return ParseAnalysis(resp.Content)
}

// ParseAnalysis extracts the first JSON object of text and validates it.
func ParseAnalysis(text string) (*Analysis, error) {
	raw, ok := firstJSONObject(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}
	var an Analysis
	if err := json.Unmarshal([]byte(raw), &an); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	an.Title = strings.TrimSpace(an.Title)
	if an.Title == "" {
		return nil, fmt.Errorf("%w: empty title", ErrMalformedResponse)
	}
	if !content.IsValidCategory(an.Category) {
		an.Category = content.NormalizeCategory(an.Category)
	}
	if strings.TrimSpace(an.ImageSearchHint) == "" {
		an.ImageSearchHint = an.Title + " " + an.Category
	}
	return &an, nil
}

// GenerateSummary returns a short plain-text summary of content.
func (a *Analyzer) GenerateSummary(ctx context.Context, text string) (string, error) {
	resp, err := a.client.Generate(ctx, &llm.Request{
		System:    summaryPrompt,
		Messages:  []llm.Message{{Role: "user", Content: text}},
		MaxTokens: 512,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// SuggestImage asks the model for an illustrative image. The answer is either
// a URL or SearchDirective followed by search terms.
func (a *Analyzer) SuggestImage(ctx context.Context, title, category string) (string, error) {
	resp, err := a.client.Generate(ctx, &llm.Request{
		System:    imagePrompt,
		Messages:  []llm.Message{{Role: "user", Content: fmt.Sprintf("Título: %s\nCategoria: %s", title, category)}},
		MaxTokens: 128,
	})
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(resp.Content)
	answer = strings.Trim(answer, "`\"' ")
	if line, _, ok := strings.Cut(answer, "\n"); ok {
		answer = strings.TrimSpace(line)
	}
	return answer, nil
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// firstJSONObject returns the span from the first '{' to the last '}'.
func firstJSONObject(text string) (string, bool) {
	m := jsonObjectRe.FindString(text)
	return m, m != ""
}

const analyzePrompt = `Você é editor-chefe de um portal de notícias brasileiro.
Reescreva a notícia recebida como uma matéria original em português do Brasil.

Responda APENAS com um objeto JSON com exatamente estes campos:
{
  "title": "título chamativo e fiel aos fatos (até 90 caracteres)",
  "excerpt": "resumo de 1 a 2 frases",
  "content": "corpo da matéria em HTML simples com parágrafos <p>, no mínimo 4 parágrafos",
  "category": "uma destas categorias: %s",
  "isUrgent": true ou false (true apenas para fatos de grande impacto acontecendo agora),
  "imageSearchTerms": "2 a 4 palavras em inglês para buscar uma foto ilustrativa"
}

Não invente fatos, números ou declarações que não estejam na notícia original.`

const summaryPrompt = `Resuma o texto a seguir em português do Brasil em no máximo 3 frases objetivas.
Responda apenas com o resumo, sem introdução.`

const imagePrompt = `Você escolhe imagens para matérias de um portal de notícias.
Se souber a URL pública e estável (https) de uma foto adequada, responda somente com a URL.
Caso contrário responda somente com "SEARCH:" seguido de 2 a 4 palavras em inglês para buscar a foto.`
