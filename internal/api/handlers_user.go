package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		p, err := s.profiles.GetProfileByEmail(r.Context(), strings.TrimSpace(req.Email))
		if err != nil {
			s.logger.Error("login lookup failed", "error", err)
			respondError(w, http.StatusInternalServerError, "database error")
			return
		}
		if p == nil || p.PasswordHash == "" {
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(req.Password)); err != nil {
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		token, err := s.generateToken(p)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to generate token")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     "token",
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(s.opts.TokenTTL.Seconds()),
		})

		respondJSON(w, http.StatusOK, map[string]any{
			"profile": p,
			"token":   token,
		})
	}
}

func (s *Server) handleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleGetMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.profiles.GetProfile(r.Context(), getClaims(r).ProfileID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "database error")
			return
		}
		if p == nil {
			respondError(w, http.StatusNotFound, "profile not found")
			return
		}
		respondJSON(w, http.StatusOK, p)
	}
}
