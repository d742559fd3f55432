// Package api provides the admin REST API of the portal automation.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/content"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/cycle"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/scheduler"
	"github.com/RobinCoderZhao/portal-autopost/internal/user"
	"github.com/RobinCoderZhao/portal-autopost/pkg/cards"
)

// Automation is the operator surface of the scheduler.
type Automation interface {
	Start() error
	Stop()
	Status() scheduler.Status
	RunCycleNow(ctx context.Context, onLog cycle.Observer) ([]cycle.LogEntry, error)
	SetQuotaCooldown(seconds int)
	ClearQuotaCooldown()
	LastLogs() []cycle.LogEntry
}

// ProfileStore looks up accounts for login.
type ProfileStore interface {
	GetProfileByEmail(ctx context.Context, email string) (*user.Profile, error)
	GetProfile(ctx context.Context, id int64) (*user.Profile, error)
}

// ContentStore lists what the automation published.
type ContentStore interface {
	ListCategories(ctx context.Context) ([]content.Category, error)
	ListPosts(ctx context.Context, limit int) ([]content.Post, error)
	GetPost(ctx context.Context, id int64) (*content.Post, error)
}

// Summarizer produces short AI summaries on demand.
type Summarizer interface {
	GenerateSummary(ctx context.Context, text string) (string, error)
}

// CardRenderer draws the share image of a post.
type CardRenderer interface {
	WritePNG(w io.Writer, c cards.Card) error
}

// Options are the optional collaborators of a Server.
type Options struct {
	Summarizer      Summarizer
	ResetCredential func()
	TokenTTL        time.Duration
	CORSOrigin      string
	Cards           CardRenderer
	SiteName        string
}

// Server holds the dependencies for the API.
type Server struct {
	profiles   ProfileStore
	content    ContentStore
	automation Automation
	opts       Options
	jwtSecret  []byte
	logger     *slog.Logger
}

// NewServer creates a new API Server instance.
func NewServer(profiles ProfileStore, posts ContentStore, automation Automation, jwtSecret string, opts Options) *Server {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	return &Server{
		profiles:   profiles,
		content:    posts,
		automation: automation,
		opts:       opts,
		jwtSecret:  []byte(jwtSecret),
		logger:     slog.Default(),
	}
}

// Routes returns the configured http.Handler for the API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /healthz", s.handleHealth())
	mux.HandleFunc("POST /api/auth/login", s.handleLogin())
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout())
	mux.HandleFunc("GET /api/posts/{id}/card.png", s.handlePostCard())

	// Any signed-in profile
	mux.Handle("GET /api/users/me", s.requireAuth(s.handleGetMe()))
	mux.Handle("GET /api/categories", s.requireAuth(s.handleListCategories()))
	mux.Handle("GET /api/posts", s.requireAuth(s.handleListPosts()))

	// Editors and admins
	mux.Handle("GET /api/automation/status", s.requireEditor(s.handleStatus()))
	mux.Handle("POST /api/automation/start", s.requireEditor(s.handleStart()))
	mux.Handle("POST /api/automation/stop", s.requireEditor(s.handleStop()))
	mux.Handle("POST /api/automation/run", s.requireEditor(s.handleRunNow()))
	mux.Handle("GET /api/automation/logs", s.requireEditor(s.handleLastLogs()))
	mux.Handle("POST /api/automation/cooldown", s.requireEditor(s.handleSetCooldown()))
	mux.Handle("DELETE /api/automation/cooldown", s.requireEditor(s.handleClearCooldown()))
	mux.Handle("POST /api/ai/summary", s.requireEditor(s.handleSummary()))

	// Admins only
	mux.Handle("POST /api/automation/credential/reset", s.requireAdmin(s.handleResetCredential()))

	return chi.Chain(
		middleware.RequestID,
		middleware.RealIP,
		s.requestLogger,
		middleware.Recoverer,
		s.cors,
	).Handler(mux)
}

// requestLogger logs every request with its chi request id.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.CORSOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.opts.CORSOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			if s.opts.CORSOrigin != "*" {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Helpers ---

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
