package content

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/RobinCoderZhao/portal-autopost/internal/user"
	"github.com/RobinCoderZhao/portal-autopost/pkg/storage"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	db, err := storage.Open(storage.Config{Driver: storage.SQLite, DSN: "file::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx, user.Schema))
	posts := NewStore(db)
	require.NoError(t, posts.Migrate(ctx))
	return NewGateway(posts, user.NewStore(db))
}

func TestMigrateSeedsCategoriesOnce(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	require.NoError(t, g.SeedCategories(ctx))

	cats, err := g.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, len(Categories))
	require.Equal(t, "Política", cats[0].Name)
	require.Equal(t, "politica", cats[0].Slug)
}

func TestTitleExists(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	cats, err := g.ListCategories(ctx)
	require.NoError(t, err)

	_, err = g.CreatePost(ctx, Post{
		Title:       "Governo anuncia novo pacote de investimentos em infraestrutura para 2026",
		CategoryID:  cats[0].ID,
		AuthorID:    1,
		IsPublished: true,
	})
	require.NoError(t, err)

	tests := []struct {
		title string
		want  bool
	}{
		{"GOVERNO ANUNCIA NOVO PACOTE", true},
		{"Governo anuncia novo pacote de investimentos em infraestrutura para 2027 e além", true},
		{"Chuvas fortes atingem o litoral", false},
		{"100% de aprovação", false},
		{"   ", false},
	}
	for _, tt := range tests {
		got, err := g.TitleExists(ctx, tt.title)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, tt.title)
	}
}

func TestFindPostImagePrefersTitleMatch(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	cats, err := g.ListCategories(ctx)
	require.NoError(t, err)
	politica := FindCategory(cats, "política")
	economia := FindCategory(cats, "Economia")
	require.NotNil(t, politica)
	require.NotNil(t, economia)

	now := time.Now()
	_, err = g.CreatePost(ctx, Post{Title: "Senado aprova reforma", ImageURL: "https://img.example/reforma.jpg", CategoryID: economia.ID, AuthorID: 1, IsPublished: true, PublishedAt: now.Add(-2 * time.Hour)})
	require.NoError(t, err)
	_, err = g.CreatePost(ctx, Post{Title: "Eleições municipais", ImageURL: "https://img.example/eleicoes.jpg", CategoryID: politica.ID, AuthorID: 1, IsPublished: true, PublishedAt: now})
	require.NoError(t, err)

	img, err := g.FindPostImage(ctx, "Política", "senado aprova")
	require.NoError(t, err)
	require.Equal(t, "https://img.example/reforma.jpg", img)

	img, err = g.FindPostImage(ctx, "Política", "tema sem relação")
	require.NoError(t, err)
	require.Equal(t, "https://img.example/eleicoes.jpg", img)

	img, err = g.FindPostImage(ctx, "Esportes", "")
	require.NoError(t, err)
	require.Empty(t, img)
}

func TestListAndGetPost(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	cats, err := g.ListCategories(ctx)
	require.NoError(t, err)
	saude := FindCategory(cats, "Saúde")

	now := time.Now()
	older, err := g.CreatePost(ctx, Post{Title: "Campanha de vacinação", CategoryID: saude.ID, AuthorID: 1, IsPublished: true, PublishedAt: now.Add(-time.Hour)})
	require.NoError(t, err)
	newer, err := g.CreatePost(ctx, Post{Title: "Novo hospital", CategoryID: saude.ID, AuthorID: 1, IsBreaking: true, IsPublished: true, PublishedAt: now})
	require.NoError(t, err)

	posts, err := g.ListPosts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, newer, posts[0].ID)
	require.Equal(t, older, posts[1].ID)

	p, err := g.GetPost(ctx, newer)
	require.NoError(t, err)
	require.Equal(t, "Novo hospital", p.Title)
	require.Equal(t, "Saúde", p.CategoryName)
	require.True(t, p.IsBreaking)

	_, err = g.GetPost(ctx, 999)
	require.ErrorIs(t, err, ErrPostNotFound)
}

func TestCreatePost_DraftHasNoPublicationDate(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	cats, err := g.ListCategories(ctx)
	require.NoError(t, err)
	cat := FindCategory(cats, "Economia")

	draft, err := g.CreatePost(ctx, Post{Title: "Rascunho", CategoryID: cat.ID, AuthorID: 1})
	require.NoError(t, err)
	live, err := g.CreatePost(ctx, Post{Title: "Publicada", CategoryID: cat.ID, AuthorID: 1, IsPublished: true})
	require.NoError(t, err)

	var isNull bool
	require.NoError(t, g.db.QueryRowContext(ctx, "SELECT published_at IS NULL FROM posts WHERE id = ?", draft).Scan(&isNull))
	require.True(t, isNull)

	p, err := g.GetPost(ctx, draft)
	require.NoError(t, err)
	require.True(t, p.PublishedAt.IsZero())

	p, err = g.GetPost(ctx, live)
	require.NoError(t, err)
	require.False(t, p.PublishedAt.IsZero())

	posts, err := g.ListPosts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, live, posts[0].ID)
}

func TestGatewayFindsAuthor(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	p, err := g.FindProfileByRoles(ctx, []string{user.RoleAdmin, user.RoleEditor})
	require.NoError(t, err)
	require.Nil(t, p)

	_, err = g.profiles.CreateProfile(ctx, "Admin", "admin@portal.com", "", user.RoleAdmin)
	require.NoError(t, err)
	p, err = g.FindProfileByRoles(ctx, []string{user.RoleAdmin, user.RoleEditor})
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, "admin@portal.com", p.Email)
}

func TestNormalizeCategory(t *testing.T) {
	tests := map[string]string{
		"Política":      "Política",
		"politica":      "Política",
		"SAÚDE":         "Saúde",
		"meio ambiente": "Meio Ambiente",
		"Sports":        DefaultCategory,
		"":              DefaultCategory,
	}
	for in, want := range tests {
		require.Equal(t, want, NormalizeCategory(in), in)
	}
	require.True(t, IsImportant("Economia"))
	require.False(t, IsImportant("Esportes"))
}
