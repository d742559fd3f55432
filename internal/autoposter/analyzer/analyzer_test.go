package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/content"
	"github.com/RobinCoderZhao/portal-autopost/pkg/llm"
)

type mockClient struct {
	requests []*llm.Request
	reply    string
	err      error
}

func (m *mockClient) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{Content: m.reply}, nil
}
func (m *mockClient) Provider() llm.Provider { return "mock" }
func (m *mockClient) Close() error            { return nil }

func TestAnalyzeNews_ParsesWrappedJSON(t *testing.T) {
	m := &mockClient{reply: "Claro! Aqui está:\n```json\n" + `{"title":"Copom mantém juros","excerpt":"Taxa fica em 10%","content":"<p>a</p>","category":"Economia","isUrgent":true,"imageSearchTerms":"central bank"}` + "\n```"}
	an, err := NewAnalyzer(m).AnalyzeNews(context.Background(), "Copom decide juros", "https://g1.example/copom")
	require.NoError(t, err)
	require.Equal(t, "Copom mantém juros", an.Title)
	require.Equal(t, "Economia", an.Category)
	require.True(t, an.IsUrgent)
	require.Equal(t, "central bank", an.ImageSearchHint)

	require.Len(t, m.requests, 1)
	require.Contains(t, m.requests[0].Messages[0].Content, "https://g1.example/copom")
	require.Contains(t, m.requests[0].System, "Meio Ambiente")
}

func TestParseAnalysis_CoercesUnknownCategory(t *testing.T) {
	an, err := ParseAnalysis(`{"title":"Final da Champions","category":"Sports"}`)
	require.NoError(t, err)
	require.Equal(t, content.DefaultCategory, an.Category)
	require.Equal(t, "Final da Champions Internacional", an.ImageSearchHint)
}

func TestParseAnalysis_Malformed(t *testing.T) {
	for _, text := range []string{"sem json aqui", `{"title": "quebrado",}`, `{"excerpt":"sem título"}`} {
		_, err := ParseAnalysis(text)
		require.ErrorIs(t, err, ErrMalformedResponse, text)
	}
}

func TestAnalyzeNews_PassesProviderFailuresThrough(t *testing.T) {
	m := &mockClient{err: &llm.QuotaExceededError{WaitSeconds: 45}}
	_, err := NewAnalyzer(m).AnalyzeNews(context.Background(), "texto", "")
	var qe *llm.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	require.Equal(t, 45, qe.WaitSeconds)

	m = &mockClient{err: llm.ErrCredentialRevoked}
	_, err = NewAnalyzer(m).AnalyzeNews(context.Background(), "texto", "")
	require.ErrorIs(t, err, llm.ErrCredentialRevoked)
}

func TestSuggestImage_TrimsAnswer(t *testing.T) {
	m := &mockClient{reply: "  SEARCH:brazil congress vote\nextra line"}
	got, err := NewAnalyzer(m).SuggestImage(context.Background(), "Votação no Congresso", "Política")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(got, SearchDirective))
	require.Equal(t, "SEARCH:brazil congress vote", got)
}

func TestGenerateSummary(t *testing.T) {
	m := &mockClient{reply: "  Resumo curto.  "}
	got, err := NewAnalyzer(m).GenerateSummary(context.Background(), "texto longo")
	require.NoError(t, err)
	require.Equal(t, "Resumo curto.", got)
}
