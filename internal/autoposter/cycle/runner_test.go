package cycle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/analyzer"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/content"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/images"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/sources"
	"github.com/RobinCoderZhao/portal-autopost/internal/user"
	"github.com/RobinCoderZhao/portal-autopost/pkg/llm"
)

type fakeStore struct {
	cats      []content.Category
	catsErr   error
	author    *user.Profile
	existing  []string
	titleErr  error
	created   []content.Post
	titleHits []string
}

func newFakeStore() *fakeStore {
	s := &fakeStore{author: &user.Profile{ID: 7, Role: user.RoleEditor}}
	for i, name := range content.Categories {
		s.cats = append(s.cats, content.Category{ID: int64(i + 1), Name: name, Slug: content.Slugify(name)})
	}
	return s
}

func (s *fakeStore) ListCategories(ctx context.Context) ([]content.Category, error) {
	return s.cats, s.catsErr
}

func (s *fakeStore) FindProfileByRoles(ctx context.Context, roles []string) (*user.Profile, error) {
	return s.author, nil
}

func (s *fakeStore) TitleExists(ctx context.Context, title string) (bool, error) {
	s.titleHits = append(s.titleHits, title)
	if s.titleErr != nil {
		return false, s.titleErr
	}
	frag := content.TitleFragment(title)
	for _, e := range s.existing {
		if strings.Contains(strings.ToLower(e), frag) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) CreatePost(ctx context.Context, p content.Post) (int64, error) {
	s.created = append(s.created, p)
	return int64(len(s.created)), nil
}

type fakeFetcher struct{ items []sources.Item }

func (f fakeFetcher) FetchRecentNews(ctx context.Context, categories []string) []sources.Item {
	return f.items
}

type fakeAnalyzer struct {
	calls   []string
	results map[string]*analyzer.Analysis
	errs    []error // consumed in order before results are used
}

func (a *fakeAnalyzer) AnalyzeNews(ctx context.Context, rawText, sourceURL string) (*analyzer.Analysis, error) {
	a.calls = append(a.calls, sourceURL)
	if len(a.errs) > 0 {
		err := a.errs[0]
		a.errs = a.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if an, ok := a.results[sourceURL]; ok {
		return an, nil
	}
	return nil, analyzer.ErrMalformedResponse
}

type fakeImages struct{ queries []images.Query }

func (f *fakeImages) Resolve(ctx context.Context, q images.Query) string {
	f.queries = append(f.queries, q)
	return "https://img.example/" + content.Slugify(q.Title) + ".jpg"
}

type fakeAnnouncer struct {
	posts []content.Post
	err   error
}

func (f *fakeAnnouncer) Announce(ctx context.Context, p content.Post) error {
	f.posts = append(f.posts, p)
	return f.err
}

func item(title, url, category string) sources.Item {
	return sources.Item{
		Title:          title,
		Description:    "Descrição de " + title,
		URL:            url,
		PublishedAt:    time.Now(),
		SourceCategory: category,
		Source:         "G1",
	}
}

type harness struct {
	store    *fakeStore
	analyzer *fakeAnalyzer
	images   *fakeImages
	runner   *Runner
	slept    []time.Duration
}

func newHarness(items []sources.Item, results map[string]*analyzer.Analysis, opts ...Option) *harness {
	h := &harness{
		store:    newFakeStore(),
		analyzer: &fakeAnalyzer{results: results},
		images:   &fakeImages{},
	}
	h.runner = NewRunner(h.store, fakeFetcher{items: items}, h.analyzer, h.images, opts...)
	h.runner.sleep = func(ctx context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		return nil
	}
	return h
}

func TestRun_PublishesExactlyOnePost(t *testing.T) {
	items := []sources.Item{
		item("Juros caem", "https://n.example/1", "Economia"),
		item("Time vence final", "https://n.example/2", "Esportes"),
		item("Nova vacina aprovada", "https://n.example/3", "Saúde"),
		item("Quarta notícia", "https://n.example/4", "Cultura"),
	}
	results := map[string]*analyzer.Analysis{
		"https://n.example/1": {Title: "Juros caem pela terceira vez seguida no país", Category: "Economia"},
		"https://n.example/2": {Title: "Time vence", Category: "Esportes"},
		"https://n.example/3": {Title: "Nova vacina", Category: "Saúde", ImageSearchHint: "vaccine"},
		"https://n.example/4": {Title: "Nunca analisada", Category: "Cultura", IsUrgent: true},
	}
	ann := &fakeAnnouncer{}
	h := newHarness(items, results, WithAnnouncer(ann))

	var observed []LogEntry
	res := h.runner.Run(context.Background(), func(e LogEntry) { observed = append(observed, e) })

	require.Equal(t, OutcomePublished, res.Outcome)
	require.Len(t, h.store.created, 1)
	require.Equal(t, []string{"https://n.example/1", "https://n.example/2", "https://n.example/3"}, h.analyzer.calls)
	require.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, h.slept)

	post := h.store.created[0]
	require.Equal(t, "Juros caem pela terceira vez seguida no país", post.Title)
	require.True(t, post.IsPublished)
	require.False(t, post.IsFeatured)
	require.False(t, post.IsBreaking)
	require.Equal(t, int64(7), post.AuthorID)
	require.Equal(t, int64(2), post.CategoryID)
	require.NotEmpty(t, post.ImageURL)
	require.Equal(t, "https://n.example/1", h.images.queries[0].SourceURL)

	require.Len(t, ann.posts, 1)
	require.Equal(t, res.Logs, observed)
	require.NotEmpty(t, res.ID)
	for _, e := range res.Logs {
		require.Equal(t, res.ID, e.CycleID)
	}
}

func TestRun_SkipsDuplicatesWithoutAnalyzing(t *testing.T) {
	items := []sources.Item{
		item("Governo anuncia novo pacote fiscal para estados", "https://n.example/dup", "Política"),
		item("Chuva forte no Sul", "https://n.example/new", "Meio Ambiente"),
	}
	h := newHarness(items, map[string]*analyzer.Analysis{
		"https://n.example/new": {Title: "Chuva forte atinge o Sul", Category: "Meio Ambiente"},
	})
	h.store.existing = []string{"GOVERNO ANUNCIA NOVO PACOTE FISCAL PARA ESTADOS E MUNICÍPIOS"}

	res := h.runner.Run(context.Background(), nil)
	require.Equal(t, OutcomePublished, res.Outcome)
	require.Equal(t, []string{"https://n.example/new"}, h.analyzer.calls)
	require.Len(t, h.store.created, 1)
	require.Equal(t, "Chuva forte atinge o Sul", h.store.created[0].Title)
	require.Empty(t, h.slept)
}

func TestRun_UrgentWinsSelection(t *testing.T) {
	long := strings.Repeat("x", 600)
	items := []sources.Item{
		item("A", "https://n.example/a", "Economia"),
		item("B", "https://n.example/b", "Cultura"),
		item("C", "https://n.example/c", "Política"),
	}
	h := newHarness(items, map[string]*analyzer.Analysis{
		"https://n.example/a": {Title: "A", Category: "Economia", Body: long},
		"https://n.example/b": {Title: "B", Category: "Cultura", IsUrgent: true},
		"https://n.example/c": {Title: "C", Category: "Política", Body: long, Excerpt: long},
	})

	res := h.runner.Run(context.Background(), nil)
	require.Equal(t, OutcomePublished, res.Outcome)
	require.Equal(t, "B", h.store.created[0].Title)
	require.True(t, h.store.created[0].IsBreaking)
}

func TestRun_QuotaRetriesOnceThenDegrades(t *testing.T) {
	items := []sources.Item{item("Enchente no interior", "https://n.example/q", "Meio Ambiente")}
	h := newHarness(items, nil)
	h.analyzer.errs = []error{
		&llm.QuotaExceededError{WaitSeconds: 45},
		&llm.QuotaExceededError{WaitSeconds: 45},
		&llm.QuotaExceededError{WaitSeconds: 45},
	}

	res := h.runner.Run(context.Background(), nil)

	require.Len(t, h.analyzer.calls, 2)
	require.Len(t, h.slept, 1)
	require.GreaterOrEqual(t, h.slept[0], 45*time.Second)
	require.NotNil(t, res.Quota)
	require.Equal(t, 45, res.Quota.WaitSeconds)

	require.Equal(t, OutcomeDegraded, res.Outcome)
	require.Len(t, h.store.created, 1)
	post := h.store.created[0]
	require.Contains(t, post.Content, "Descrição de Enchente no interior")
	require.Contains(t, post.Content, `href="https://n.example/q"`)
	require.Empty(t, post.ImageURL)
	require.Empty(t, h.images.queries)
}

func TestRun_QuotaAbortSkipsRemainingCandidates(t *testing.T) {
	items := []sources.Item{
		item("Primeira", "https://n.example/1", "Economia"),
		item("Segunda", "https://n.example/2", "Economia"),
	}
	h := newHarness(items, map[string]*analyzer.Analysis{
		"https://n.example/2": {Title: "Segunda", Category: "Economia"},
	})
	h.analyzer.errs = []error{&llm.QuotaExceededError{WaitSeconds: 60}, &llm.QuotaExceededError{WaitSeconds: 30}}

	res := h.runner.Run(context.Background(), nil)
	require.Equal(t, []string{"https://n.example/1", "https://n.example/1"}, h.analyzer.calls)
	require.Equal(t, 30, res.Quota.WaitSeconds)
	require.Equal(t, OutcomeDegraded, res.Outcome)
	require.Equal(t, "Primeira", h.store.created[0].Title)
}

func TestRun_QuotaRetrySucceeds(t *testing.T) {
	items := []sources.Item{item("Copom", "https://n.example/c", "Economia")}
	h := newHarness(items, map[string]*analyzer.Analysis{
		"https://n.example/c": {Title: "Copom mantém Selic", Category: "Economia"},
	})
	h.analyzer.errs = []error{&llm.QuotaExceededError{WaitSeconds: 5}}

	res := h.runner.Run(context.Background(), nil)
	require.Nil(t, res.Quota)
	require.Equal(t, OutcomePublished, res.Outcome)
	require.Equal(t, []time.Duration{5 * time.Second}, h.slept)
}

func TestRun_CredentialRevokedDisablesAI(t *testing.T) {
	items := []sources.Item{
		item("Primeira", "https://n.example/1", "Tecnologia"),
		item("Segunda", "https://n.example/2", "Tecnologia"),
	}
	h := newHarness(items, nil)
	h.analyzer.errs = []error{llm.ErrCredentialRevoked}

	res := h.runner.Run(context.Background(), nil)
	require.True(t, res.CredentialRevoked)
	require.True(t, h.runner.AIDisabled())
	require.Len(t, h.analyzer.calls, 1)
	require.Equal(t, OutcomeDegraded, res.Outcome)

	h.store.existing = []string{"Primeira"}
	res = h.runner.Run(context.Background(), nil)
	require.Len(t, h.analyzer.calls, 1)
	require.Equal(t, OutcomeDegraded, res.Outcome)
	require.Equal(t, "Segunda", h.store.created[1].Title)

	h.runner.ResetCredential()
	require.False(t, h.runner.AIDisabled())
}

func TestRun_RevocationMidCycleSkipsAIImages(t *testing.T) {
	items := []sources.Item{
		item("Primeira", "https://n.example/1", "Tecnologia"),
		item("Segunda", "https://n.example/2", "Tecnologia"),
	}
	h := newHarness(items, map[string]*analyzer.Analysis{
		"https://n.example/1": {Title: "Primeira análise", Category: "Tecnologia"},
	})
	h.analyzer.errs = []error{nil, llm.ErrCredentialRevoked}

	res := h.runner.Run(context.Background(), nil)
	require.True(t, res.CredentialRevoked)
	require.Equal(t, OutcomePublished, res.Outcome)
	require.Len(t, h.images.queries, 1)
	require.True(t, h.images.queries[0].NoAI)
}

func TestRun_ImagesAllowAIWhenCredentialValid(t *testing.T) {
	items := []sources.Item{item("Primeira", "https://n.example/1", "Tecnologia")}
	h := newHarness(items, map[string]*analyzer.Analysis{
		"https://n.example/1": {Title: "Primeira análise", Category: "Tecnologia"},
	})

	h.runner.Run(context.Background(), nil)
	require.Len(t, h.images.queries, 1)
	require.False(t, h.images.queries[0].NoAI)
}

type ctxKey struct{}

// ctxHandler records the value stored under ctxKey for every record.
type ctxHandler struct {
	mu   sync.Mutex
	seen []any
}

func (h *ctxHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *ctxHandler) WithAttrs([]slog.Attr) slog.Handler       { return h }
func (h *ctxHandler) WithGroup(string) slog.Handler            { return h }

func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, ctx.Value(ctxKey{}))
	return nil
}

func TestRun_LogsCarryCycleContext(t *testing.T) {
	items := []sources.Item{item("Primeira", "https://n.example/1", "Tecnologia")}
	handler := &ctxHandler{}
	h := newHarness(items, map[string]*analyzer.Analysis{
		"https://n.example/1": {Title: "Primeira análise", Category: "Tecnologia"},
	}, WithLogger(slog.New(handler)))

	ctx := context.WithValue(context.Background(), ctxKey{}, "trace-1")
	res := h.runner.Run(ctx, nil)
	require.Equal(t, OutcomePublished, res.Outcome)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Len(t, handler.seen, len(res.Logs)+1)
	for _, v := range handler.seen {
		require.Equal(t, "trace-1", v)
	}
}

func TestRun_OtherAnalysisErrorsSkipCandidate(t *testing.T) {
	items := []sources.Item{
		item("Falha", "https://n.example/x", "Economia"),
		item("Boa", "https://n.example/ok", "Economia"),
	}
	h := newHarness(items, map[string]*analyzer.Analysis{
		"https://n.example/ok": {Title: "Boa notícia", Category: "Economia"},
	})
	h.analyzer.errs = []error{&llm.ProviderError{Status: 500, Message: "boom"}}

	res := h.runner.Run(context.Background(), nil)
	require.Equal(t, OutcomePublished, res.Outcome)
	require.Equal(t, "Boa notícia", h.store.created[0].Title)
}

func TestRun_CategoryListFailureIsFatal(t *testing.T) {
	h := newHarness([]sources.Item{item("x", "https://n.example/x", "Economia")}, nil)
	h.store.catsErr = errors.New("db down")

	res := h.runner.Run(context.Background(), nil)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Empty(t, h.analyzer.calls)
	require.Equal(t, LevelError, res.Logs[len(res.Logs)-1].Level)
	require.Equal(t, 1, res.Errors)
}

func TestRun_NothingFetched(t *testing.T) {
	h := newHarness(nil, nil)
	res := h.runner.Run(context.Background(), nil)
	require.Equal(t, OutcomeNothing, res.Outcome)
	require.Empty(t, h.store.created)
}

func TestRun_NoAuthorAbandonsPost(t *testing.T) {
	items := []sources.Item{item("Sem autor", "https://n.example/a", "Economia")}
	h := newHarness(items, map[string]*analyzer.Analysis{
		"https://n.example/a": {Title: "Sem autor", Category: "Economia"},
	})
	h.store.author = nil

	res := h.runner.Run(context.Background(), nil)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Empty(t, h.store.created)
}

func TestRun_DegradedUsesDefaultCategoryForUnknownLabel(t *testing.T) {
	items := []sources.Item{item("Rumor", sources.SyntheticURLPrefix+"rumor", "Fofoca")}
	h := newHarness(items, nil)
	h.runner.aiDisabled.Store(true)

	res := h.runner.Run(context.Background(), nil)
	require.Equal(t, OutcomeDegraded, res.Outcome)
	post := h.store.created[0]
	require.Equal(t, content.DefaultCategory, post.CategoryName)
	require.NotContains(t, post.Content, "href=")
}

func TestDegradedBody_EscapesText(t *testing.T) {
	body := DegradedBody(sources.Item{Title: "t", Description: `<script>alert("x")</script>`, URL: "https://n.example/?a=1&b=2"})
	require.NotContains(t, body, "<script>")
	require.Contains(t, body, "&lt;script&gt;")
	require.Contains(t, body, `href="https://n.example/?a=1&amp;b=2"`)
}
