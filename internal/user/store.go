// Package user implements editorial profiles and their credentials.
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/RobinCoderZhao/portal-autopost/pkg/storage"
)

// Roles recognised by the portal.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleReader = "reader"
)

// Schema is the SQLite schema for profiles.
const Schema = `
CREATE TABLE IF NOT EXISTS profiles (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    name          TEXT NOT NULL,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL DEFAULT '',
    role          TEXT NOT NULL DEFAULT 'reader',
    created_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_profiles_role ON profiles(role);
`

// Store provides persistence for profiles.
type Store struct {
	db *storage.DB
}

// NewStore creates a new profile store.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// Profile is a portal account. Admins and editors may author automated posts.
type Profile struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// CanAuthor reports whether the profile may be used as a post author.
func (p *Profile) CanAuthor() bool {
	return p.Role == RoleAdmin || p.Role == RoleEditor
}

var profileColumns = []string{"id", "name", "email", "password_hash", "role", "created_at"}

// CreateProfile inserts a new profile.
func (s *Store) CreateProfile(ctx context.Context, name, email, passwordHash, role string) (int64, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if role == "" {
		role = RoleReader
	}
	query, args, err := s.db.Builder().
		Insert("profiles").
		Columns("name", "email", "password_hash", "role").
		Values(name, email, passwordHash, role).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("create profile: %w", err)
	}
	return res.LastInsertId()
}

// GetProfileByEmail finds a profile by email. It returns nil when none exists.
func (s *Store) GetProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	return s.queryOne(ctx, s.db.Builder().Select(profileColumns...).From("profiles").Where(sq.Eq{"email": email}))
}

// GetProfile finds a profile by id. It returns nil when none exists.
func (s *Store) GetProfile(ctx context.Context, id int64) (*Profile, error) {
	return s.queryOne(ctx, s.db.Builder().Select(profileColumns...).From("profiles").Where(sq.Eq{"id": id}))
}

// FindFirstByRoles returns the oldest profile holding any of roles, or nil.
func (s *Store) FindFirstByRoles(ctx context.Context, roles []string) (*Profile, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	return s.queryOne(ctx, s.db.Builder().
		Select(profileColumns...).
		From("profiles").
		Where(sq.Eq{"role": roles}).
		OrderBy("id ASC").
		Limit(1))
}

func (s *Store) queryOne(ctx context.Context, b sq.SelectBuilder) (*Profile, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	p := &Profile{}
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.Role, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return p, nil
}
