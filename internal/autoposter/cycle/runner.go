// Package cycle runs one automation cycle: fetch news, analyze a few
// candidates, pick the best one and publish it.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/analyzer"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/content"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/images"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/sources"
	"github.com/RobinCoderZhao/portal-autopost/internal/user"
	"github.com/RobinCoderZhao/portal-autopost/pkg/llm"
	"github.com/RobinCoderZhao/portal-autopost/pkg/pacing"
	"github.com/RobinCoderZhao/portal-autopost/pkg/scraper"
)

// Store is the part of the content store a cycle reads and writes.
type Store interface {
	ListCategories(ctx context.Context) ([]content.Category, error)
	FindProfileByRoles(ctx context.Context, roles []string) (*user.Profile, error)
	TitleExists(ctx context.Context, title string) (bool, error)
	CreatePost(ctx context.Context, p content.Post) (int64, error)
}

// NewsFetcher supplies raw candidates.
type NewsFetcher interface {
	FetchRecentNews(ctx context.Context, categories []string) []sources.Item
}

// Analyzer rewrites a candidate with the model.
type Analyzer interface {
	AnalyzeNews(ctx context.Context, rawText, sourceURL string) (*analyzer.Analysis, error)
}

// ImageResolver finds an image for the selected post.
type ImageResolver interface {
	Resolve(ctx context.Context, q images.Query) string
}

// Announcer is told about every published post.
type Announcer interface {
	Announce(ctx context.Context, post content.Post) error
}

// ArticleReader fetches the readable text of a source page.
type ArticleReader interface {
	Read(ctx context.Context, rawURL string) (*scraper.Article, error)
}

// Outcome is how a cycle ended.
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeDegraded  Outcome = "degraded"
	OutcomeNothing   Outcome = "nothing_to_do"
	OutcomeFailed    Outcome = "failed"
)

// Result is everything a cycle reports back.
type Result struct {
	ID                string                  `json:"id"`
	StartedAt         time.Time               `json:"started_at"`
	FinishedAt        time.Time               `json:"finished_at"`
	Outcome           Outcome                 `json:"outcome"`
	PostID            int64                   `json:"post_id,omitempty"`
	Errors            int                     `json:"errors"`
	Quota             *llm.QuotaExceededError `json:"-"`
	CredentialRevoked bool                    `json:"credential_revoked"`
	Logs              []LogEntry              `json:"logs"`
}

// Config tunes a Runner.
type Config struct {
	MaxCandidates int           `yaml:"max_candidates"`
	Pacing        time.Duration `yaml:"pacing"`
	AuthorRoles   []string      `yaml:"author_roles"`
	ReadSources   bool          `yaml:"read_sources"`
}

// DefaultConfig returns the provider-friendly defaults.
func DefaultConfig() Config {
	return Config{
		MaxCandidates: 3,
		Pacing:        3 * time.Second,
		AuthorRoles:   []string{user.RoleAdmin, user.RoleEditor},
	}
}

// Runner executes cycles. A Runner is safe for use by one cycle at a time;
// the scheduler guarantees that.
type Runner struct {
	store     Store
	fetcher   NewsFetcher
	analyzer  Analyzer
	images    ImageResolver
	announcer Announcer
	reader    ArticleReader
	cfg       Config

	aiDisabled atomic.Bool

	logger *slog.Logger
	now    func() time.Time
	sleep  pacing.SleepFunc
}

// Option customizes a Runner.
type Option func(*Runner)

// WithAnnouncer announces published posts.
func WithAnnouncer(a Announcer) Option { return func(r *Runner) { r.announcer = a } }

// WithArticleReader enriches candidates with the text of their source page.
func WithArticleReader(ar ArticleReader) Option { return func(r *Runner) { r.reader = ar } }

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithConfig overrides the defaults. Zero fields keep their default.
func WithConfig(cfg Config) Option {
	return func(r *Runner) {
		if cfg.MaxCandidates > 0 {
			r.cfg.MaxCandidates = cfg.MaxCandidates
		}
		if cfg.Pacing > 0 {
			r.cfg.Pacing = cfg.Pacing
		}
		if len(cfg.AuthorRoles) > 0 {
			r.cfg.AuthorRoles = cfg.AuthorRoles
		}
		r.cfg.ReadSources = cfg.ReadSources
	}
}

// NewRunner wires a cycle runner.
func NewRunner(store Store, fetcher NewsFetcher, an Analyzer, img ImageResolver, opts ...Option) *Runner {
	r := &Runner{
		store:    store,
		fetcher:  fetcher,
		analyzer: an,
		images:   img,
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
		now:      time.Now,
		sleep:    pacing.Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AIDisabled reports whether a revoked credential has switched analysis off.
func (r *Runner) AIDisabled() bool { return r.aiDisabled.Load() }

// ResetCredential re-enables analysis after the operator replaced the key.
func (r *Runner) ResetCredential() {
	if r.aiDisabled.Swap(false) {
		r.logger.Info("ai analysis re-enabled")
	}
}

// Run executes one cycle. It never fails: everything that happened is in the
// returned Result and was passed to onLog (which may be nil) as it happened.
func (r *Runner) Run(ctx context.Context, onLog Observer) *Result {
	c := &run{
		Runner: r,
		onLog:  onLog,
		res:    &Result{ID: uuid.NewString(), StartedAt: r.now()},
	}
	c.execute(ctx)
	c.res.FinishedAt = r.now()
	r.logger.InfoContext(ctx, "cycle finished", "cycle_id", c.res.ID, "outcome", c.res.Outcome,
		"post_id", c.res.PostID, "duration", c.res.FinishedAt.Sub(c.res.StartedAt))
	return c.res
}

// run is the state of a single cycle.
type run struct {
	*Runner
	onLog Observer
	res   *Result
	cats  []content.Category
}

func (c *run) log(ctx context.Context, level Level, format string, args ...any) {
	e := LogEntry{Time: c.now(), Level: level, Message: fmt.Sprintf(format, args...), CycleID: c.res.ID}
	c.res.Logs = append(c.res.Logs, e)
	if level == LevelError {
		c.res.Errors++
	}
	c.logger.Log(ctx, level.slogLevel(), e.Message, "cycle_id", e.CycleID)
	if c.onLog != nil {
		c.onLog(e)
	}
}

func (c *run) execute(ctx context.Context) {
	c.log(ctx, LevelInfo, "Iniciando ciclo de automação")

	cats, err := c.store.ListCategories(ctx)
	if err != nil {
		c.log(ctx, LevelError, "Falha ao carregar categorias: %v", err)
		c.res.Outcome = OutcomeFailed
		return
	}
	c.cats = cats
	names := make([]string, len(cats))
	for i, cat := range cats {
		names[i] = cat.Name
	}

	c.log(ctx, LevelInfo, "Buscando notícias recentes")
	items := c.fetcher.FetchRecentNews(ctx, names)
	if len(items) == 0 {
		c.log(ctx, LevelInfo, "Nenhuma notícia nova encontrada, nada a fazer")
		c.res.Outcome = OutcomeNothing
		return
	}
	c.log(ctx, LevelInfo, "%d notícias encontradas", len(items))

	candidates := c.analyzeAll(ctx, items)
	if len(candidates) == 0 {
		c.degraded(ctx, items)
		return
	}

	best, _ := Select(candidates)
	c.log(ctx, LevelInfo, "Selecionada: %q (pontuação %d, prioridade %d)", best.Analysis.Title, best.Score, best.Priority)

	an := best.Analysis
	q := images.Query{Title: an.Title, Category: an.Category, Hint: an.ImageSearchHint, NoAI: c.aiDisabled.Load()}
	if !sources.IsSynthetic(best.Item.URL) {
		q.SourceURL = best.Item.URL
	}
	imageURL := c.images.Resolve(ctx, q)
	if imageURL == "" {
		c.log(ctx, LevelWarning, "Nenhuma imagem encontrada, publicando sem imagem")
	}

	post := content.Post{
		Title:      an.Title,
		Excerpt:    an.Excerpt,
		Content:    an.Body,
		ImageURL:   imageURL,
		IsBreaking: an.IsUrgent,
	}
	if c.publish(ctx, post, an.Category) {
		c.res.Outcome = OutcomePublished
	}
}

// analyzeAll analyzes up to MaxCandidates items in fetch order.
func (c *run) analyzeAll(ctx context.Context, items []sources.Item) []Candidate {
	if c.aiDisabled.Load() {
		c.log(ctx, LevelWarning, "Análise por IA desativada (credencial revogada), usando modo simplificado")
		return nil
	}
	if len(items) > c.cfg.MaxCandidates {
		items = items[:c.cfg.MaxCandidates]
	}

	var out []Candidate
	analyzed := 0
	for _, item := range items {
		dup, err := c.store.TitleExists(ctx, item.Title)
		if err != nil {
			c.log(ctx, LevelWarning, "Falha ao verificar duplicidade de %q: %v", item.Title, err)
			continue
		}
		if dup {
			c.log(ctx, LevelInfo, "Ignorando notícia já publicada: %q", item.Title)
			continue
		}

		if analyzed > 0 {
			if err := c.sleep(ctx, c.cfg.Pacing); err != nil {
				c.log(ctx, LevelWarning, "Análise interrompida: %v", err)
				break
			}
		}
		analyzed++

		c.log(ctx, LevelInfo, "Analisando: %q", item.Title)
		an, err := c.analyzeWithRetry(ctx, item)
		var quota *llm.QuotaExceededError
		switch {
		case err == nil:
			cand := NewCandidate(item, an)
			c.log(ctx, LevelSuccess, "Analisada: %q [%s] pontuação %d", an.Title, an.Category, cand.Score)
			out = append(out, cand)
		case errors.Is(err, llm.ErrCredentialRevoked):
			c.aiDisabled.Store(true)
			c.res.CredentialRevoked = true
			c.log(ctx, LevelError, "Chave da IA revogada, análises suspensas até a troca da credencial")
			return out
		case errors.As(err, &quota):
			c.res.Quota = quota
			c.log(ctx, LevelWarning, "Cota da IA esgotada novamente, encerrando análises (aguardar %ds)", quota.WaitSeconds)
			return out
		default:
			c.log(ctx, LevelWarning, "Falha ao analisar %q: %v", item.Title, err)
		}
	}
	return out
}

// analyzeWithRetry waits out one quota signal and tries the same item again.
func (c *run) analyzeWithRetry(ctx context.Context, item sources.Item) (*analyzer.Analysis, error) {
	raw := c.rawText(ctx, item)
	an, err := c.analyzer.AnalyzeNews(ctx, raw, item.URL)
	var quota *llm.QuotaExceededError
	if !errors.As(err, &quota) {
		return an, err
	}
	c.log(ctx, LevelWarning, "Cota da IA excedida, aguardando %ds para tentar novamente", quota.WaitSeconds)
	if serr := c.sleep(ctx, time.Duration(quota.WaitSeconds)*time.Second); serr != nil {
		return nil, err
	}
	return c.analyzer.AnalyzeNews(ctx, raw, item.URL)
}

func (c *run) rawText(ctx context.Context, item sources.Item) string {
	raw := item.Title
	if item.Description != "" {
		raw += "\n\n" + item.Description
	}
	if !c.cfg.ReadSources || c.reader == nil || sources.IsSynthetic(item.URL) {
		return raw
	}
	article, err := c.reader.Read(ctx, item.URL)
	if err != nil {
		c.logger.DebugContext(ctx, "source page unreadable", "url", item.URL, "error", err)
		return raw
	}
	if article.Text != "" {
		raw += "\n\n" + article.Text
	}
	return raw
}

// degraded publishes the first unpublished raw item without AI enrichment.
func (c *run) degraded(ctx context.Context, items []sources.Item) {
	c.log(ctx, LevelWarning, "Nenhuma análise disponível, publicando em modo simplificado")

	var item *sources.Item
	for i := range items {
		dup, err := c.store.TitleExists(ctx, items[i].Title)
		if err != nil {
			c.log(ctx, LevelWarning, "Falha ao verificar duplicidade de %q: %v", items[i].Title, err)
			continue
		}
		if !dup {
			item = &items[i]
			break
		}
	}
	if item == nil {
		c.log(ctx, LevelInfo, "Todas as notícias já foram publicadas, nada a fazer")
		c.res.Outcome = OutcomeNothing
		return
	}

	category := item.SourceCategory
	if content.FindCategory(c.cats, category) == nil {
		c.log(ctx, LevelWarning, "Categoria %q não encontrada, usando %s", category, content.DefaultCategory)
		category = content.DefaultCategory
	}

	excerpt := item.Description
	if excerpt == "" {
		excerpt = scraper.Truncate(item.Title, 150)
	}
	post := content.Post{
		Title:   item.Title,
		Excerpt: excerpt,
		Content: DegradedBody(*item),
	}
	if c.publish(ctx, post, category) {
		c.res.Outcome = OutcomeDegraded
	}
}

// DegradedBody renders the fixed HTML used when no analysis is available.
func DegradedBody(item sources.Item) string {
	text := item.Description
	if text == "" {
		text = item.Title
	}
	var sb strings.Builder
	sb.WriteString("<p>")
	sb.WriteString(html.EscapeString(text))
	sb.WriteString("</p>\n")
	sb.WriteString("<p>Acompanhe as próximas atualizações sobre este assunto.</p>")
	if item.URL != "" && !sources.IsSynthetic(item.URL) {
		name := item.Source
		if name == "" {
			name = "matéria original"
		}
		fmt.Fprintf(&sb, "\n<p>Fonte: <a href=\"%s\" target=\"_blank\" rel=\"noopener noreferrer\">%s</a></p>",
			html.EscapeString(item.URL), html.EscapeString(name))
	}
	return sb.String()
}

// publish resolves category and author and writes the post. It reports success.
func (c *run) publish(ctx context.Context, post content.Post, categoryName string) bool {
	cat := content.FindCategory(c.cats, categoryName)
	if cat == nil {
		c.log(ctx, LevelError, "Categoria %q não existe, publicação cancelada", categoryName)
		c.res.Outcome = OutcomeFailed
		return false
	}
	author, err := c.store.FindProfileByRoles(ctx, c.cfg.AuthorRoles)
	if err != nil {
		c.log(ctx, LevelError, "Falha ao buscar autor: %v", err)
		c.res.Outcome = OutcomeFailed
		return false
	}
	if author == nil {
		c.log(ctx, LevelError, "Nenhum autor com perfil %s disponível", strings.Join(c.cfg.AuthorRoles, "/"))
		c.res.Outcome = OutcomeFailed
		return false
	}

	post.CategoryID = cat.ID
	post.CategoryName = cat.Name
	post.AuthorID = author.ID
	post.IsPublished = true
	post.IsFeatured = false
	post.PublishedAt = c.now()

	id, err := c.store.CreatePost(ctx, post)
	if err != nil {
		c.log(ctx, LevelError, "Falha ao publicar %q: %v", post.Title, err)
		c.res.Outcome = OutcomeFailed
		return false
	}
	post.ID = id
	c.res.PostID = id
	c.log(ctx, LevelSuccess, "Publicado: %q em %s (id %d)", post.Title, cat.Name, id)

	if c.announcer != nil {
		if err := c.announcer.Announce(ctx, post); err != nil {
			c.log(ctx, LevelWarning, "Falha ao notificar publicação: %v", err)
		}
	}
	return true
}
