package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/content"
	"github.com/RobinCoderZhao/portal-autopost/pkg/cards"
)

func (s *Server) handleListCategories() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cats, err := s.content.ListCategories(r.Context())
		if err != nil {
			s.logger.Error("list categories failed", "error", err)
			respondError(w, http.StatusInternalServerError, "database error")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"categories": cats})
	}
}

func (s *Server) handleListPosts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		posts, err := s.content.ListPosts(r.Context(), limit)
		if err != nil {
			s.logger.Error("list posts failed", "error", err)
			respondError(w, http.StatusInternalServerError, "database error")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"posts": posts})
	}
}

// handlePostCard serves the share image of a post. It is public so social
// networks can fetch it.
func (s *Server) handlePostCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Cards == nil {
			respondError(w, http.StatusNotFound, "share cards disabled")
			return
		}
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil || id <= 0 {
			respondError(w, http.StatusBadRequest, "invalid post id")
			return
		}
		post, err := s.content.GetPost(r.Context(), id)
		if errors.Is(err, content.ErrPostNotFound) {
			respondError(w, http.StatusNotFound, "post not found")
			return
		}
		if err != nil {
			s.logger.Error("get post failed", "id", id, "error", err)
			respondError(w, http.StatusInternalServerError, "database error")
			return
		}

		var buf bytes.Buffer
		err = s.opts.Cards.WritePNG(&buf, cards.Card{
			Title:       post.Title,
			Category:    post.CategoryName,
			Site:        s.opts.SiteName,
			Breaking:    post.IsBreaking,
			PublishedAt: post.PublishedAt,
		})
		if err != nil {
			s.logger.Error("render card failed", "id", id, "error", err)
			respondError(w, http.StatusInternalServerError, "render failed")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = w.Write(buf.Bytes())
	}
}
