package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/RobinCoderZhao/portal-autopost/internal/user"
	"github.com/RobinCoderZhao/portal-autopost/pkg/storage"
)

// TitleFragmentLen is how many leading characters of a title are compared
// when looking for duplicates.
const TitleFragmentLen = 50

// Schema is the SQLite schema for categories and posts.
const Schema = `
CREATE TABLE IF NOT EXISTS categories (
    id    INTEGER PRIMARY KEY AUTOINCREMENT,
    name  TEXT NOT NULL UNIQUE,
    slug  TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS posts (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    title        TEXT NOT NULL,
    title_key    TEXT NOT NULL,
    excerpt      TEXT NOT NULL DEFAULT '',
    content      TEXT NOT NULL DEFAULT '',
    image_url    TEXT NOT NULL DEFAULT '',
    category_id  INTEGER NOT NULL REFERENCES categories(id),
    author_id    INTEGER NOT NULL,
    is_breaking  BOOLEAN NOT NULL DEFAULT 0,
    is_published BOOLEAN NOT NULL DEFAULT 0,
    is_featured  BOOLEAN NOT NULL DEFAULT 0,
    published_at TIMESTAMP,
    created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_posts_category ON posts(category_id);
CREATE INDEX IF NOT EXISTS idx_posts_published ON posts(published_at);
`

// Post is the published projection written by the automation.
type Post struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Excerpt      string    `json:"excerpt"`
	Content      string    `json:"content"`
	ImageURL     string    `json:"image_url,omitempty"`
	CategoryID   int64     `json:"category_id"`
	CategoryName string    `json:"category,omitempty"`
	AuthorID     int64     `json:"author_id"`
	IsBreaking   bool      `json:"is_breaking"`
	IsPublished  bool      `json:"is_published"`
	IsFeatured   bool      `json:"is_featured"`
	PublishedAt  time.Time `json:"published_at"`
}

// Store persists categories and posts.
type Store struct {
	db *storage.DB
}

// NewStore creates a content store on db. Call Migrate before use.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema and seeds the fixed categories.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.Migrate(ctx, Schema); err != nil {
		return err
	}
	return s.SeedCategories(ctx)
}

// SeedCategories inserts any missing category of the fixed enum.
func (s *Store) SeedCategories(ctx context.Context) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, name := range Categories {
			query, args, err := s.db.Builder().
				Insert("categories").
				Columns("name", "slug").
				Values(name, Slugify(name)).
				Suffix("ON CONFLICT DO NOTHING").
				ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("seed category %s: %w", name, err)
			}
		}
		return nil
	})
}

// ListCategories returns every category ordered by id.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	query, args, err := s.db.Builder().Select("id", "name", "slug").From("categories").OrderBy("id ASC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// TitleExists reports whether a stored post title contains the first
// TitleFragmentLen characters of title, ignoring case.
func (s *Store) TitleExists(ctx context.Context, title string) (bool, error) {
	fragment := TitleFragment(title)
	if fragment == "" {
		return false, nil
	}
	query, args, err := s.db.Builder().
		Select("1").
		From("posts").
		Where(likeContains("title_key", fragment)).
		Limit(1).
		ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check title: %w", err)
	}
	return true, nil
}

// FindPostImage returns the image of the most relevant earlier post: a post
// whose title contains titleFragment wins over the latest post of category.
// It returns "" when no post with an image matches.
func (s *Store) FindPostImage(ctx context.Context, category, titleFragment string) (string, error) {
	fragment := TitleFragment(titleFragment)
	cond := sq.Or{sq.Expr("LOWER(c.name) = LOWER(?)", category)}
	order := "p.published_at DESC"
	var orderArgs []any
	if fragment != "" {
		like := likeContains("p.title_key", fragment)
		cond = append(cond, like)
		order = "CASE WHEN p.title_key LIKE ? ESCAPE '\\' THEN 0 ELSE 1 END, p.published_at DESC"
		orderArgs = append(orderArgs, likePattern(fragment))
	}

	query, args, err := s.db.Builder().
		Select("p.image_url").
		From("posts p").
		Join("categories c ON c.id = p.category_id").
		Where(sq.NotEq{"p.image_url": ""}).
		Where(cond).
		OrderByClause(order, orderArgs...).
		Limit(1).
		ToSql()
	if err != nil {
		return "", err
	}

	var imageURL string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&imageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find post image: %w", err)
	}
	return imageURL, nil
}

// CreatePost writes a post in a single statement and returns its id.
func (s *Store) CreatePost(ctx context.Context, p Post) (int64, error) {
	if p.PublishedAt.IsZero() && p.IsPublished {
		p.PublishedAt = time.Now()
	}
	var publishedAt any
	if !p.PublishedAt.IsZero() {
		publishedAt = p.PublishedAt.UTC()
	}
	query, args, err := s.db.Builder().
		Insert("posts").
		Columns("title", "title_key", "excerpt", "content", "image_url", "category_id", "author_id",
			"is_breaking", "is_published", "is_featured", "published_at").
		Values(p.Title, strings.ToLower(p.Title), p.Excerpt, p.Content, p.ImageURL, p.CategoryID, p.AuthorID,
			p.IsBreaking, p.IsPublished, p.IsFeatured, publishedAt).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("create post: %w", err)
	}
	return res.LastInsertId()
}

// ErrPostNotFound is returned by GetPost for an unknown id.
var ErrPostNotFound = errors.New("content: post not found")

func (s *Store) selectPosts() sq.SelectBuilder {
	return s.db.Builder().
		Select("p.id", "p.title", "p.excerpt", "p.content", "p.image_url", "p.category_id", "c.name",
			"p.author_id", "p.is_breaking", "p.is_published", "p.is_featured", "p.published_at").
		From("posts p").
		Join("categories c ON c.id = p.category_id")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (Post, error) {
	var p Post
	var publishedAt sql.NullTime
	err := row.Scan(&p.ID, &p.Title, &p.Excerpt, &p.Content, &p.ImageURL, &p.CategoryID, &p.CategoryName,
		&p.AuthorID, &p.IsBreaking, &p.IsPublished, &p.IsFeatured, &publishedAt)
	p.PublishedAt = publishedAt.Time
	return p, err
}

// ListPosts returns the most recently published posts.
func (s *Store) ListPosts(ctx context.Context, limit int) ([]Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query, args, err := s.selectPosts().
		OrderBy("p.published_at DESC", "p.id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// GetPost returns one post with its category name.
func (s *Store) GetPost(ctx context.Context, id int64) (*Post, error) {
	query, args, err := s.selectPosts().Where(sq.Eq{"p.id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	p, err := scanPost(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return &p, nil
}

// TitleFragment returns the lowercased first TitleFragmentLen characters of title.
func TitleFragment(title string) string {
	r := []rune(strings.ToLower(strings.TrimSpace(title)))
	if len(r) > TitleFragmentLen {
		r = r[:TitleFragmentLen]
	}
	return strings.TrimSpace(string(r))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(fragment string) string {
	return "%" + likeEscaper.Replace(fragment) + "%"
}

func likeContains(column, fragment string) sq.Sqlizer {
	return sq.Expr(column+` LIKE ? ESCAPE '\'`, likePattern(fragment))
}

// Gateway is the content store as seen by the automation pipeline:
// posts and categories plus author lookup over profiles.
type Gateway struct {
	*Store
	profiles *user.Store
}

// NewGateway combines the content and profile stores.
func NewGateway(posts *Store, profiles *user.Store) *Gateway {
	return &Gateway{Store: posts, profiles: profiles}
}

// FindProfileByRoles returns the first profile whose role is one of roles, or nil.
func (g *Gateway) FindProfileByRoles(ctx context.Context, roles []string) (*user.Profile, error) {
	return g.profiles.FindFirstByRoles(ctx, roles)
}
