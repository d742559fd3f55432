package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/scheduler"
)

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, s.automation.Status())
	}
}

func (s *Server) handleStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.automation.Start(); err != nil {
			s.respondSchedulerError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, s.automation.Status())
	}
}

func (s *Server) handleStop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.automation.Stop()
		respondJSON(w, http.StatusOK, s.automation.Status())
	}
}

func (s *Server) handleRunNow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// A started cycle always completes; a client hanging up must not
		// abort it between analysis and publication.
		logs, err := s.automation.RunCycleNow(context.WithoutCancel(r.Context()), nil)
		if err != nil {
			s.respondSchedulerError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"logs": logs})
	}
}

func (s *Server) handleLastLogs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"logs": s.automation.LastLogs()})
	}
}

type cooldownRequest struct {
	Seconds int `json:"seconds"`
}

func (s *Server) handleSetCooldown() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cooldownRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Seconds <= 0 {
			respondError(w, http.StatusBadRequest, "seconds must be a positive integer")
			return
		}
		s.automation.SetQuotaCooldown(req.Seconds)
		respondJSON(w, http.StatusOK, s.automation.Status())
	}
}

func (s *Server) handleClearCooldown() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.automation.ClearQuotaCooldown()
		respondJSON(w, http.StatusOK, s.automation.Status())
	}
}

func (s *Server) handleResetCredential() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.ResetCredential == nil {
			respondError(w, http.StatusNotImplemented, "credential reset not available")
			return
		}
		s.opts.ResetCredential()
		s.logger.Info("ai credential reset", "profile_id", getClaims(r).ProfileID)
		respondJSON(w, http.StatusOK, s.automation.Status())
	}
}

type summaryRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSummary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Summarizer == nil {
			respondError(w, http.StatusServiceUnavailable, "AI is not configured")
			return
		}
		var req summaryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Content) == "" {
			respondError(w, http.StatusBadRequest, "content is required")
			return
		}
		summary, err := s.opts.Summarizer.GenerateSummary(r.Context(), req.Content)
		if err != nil {
			s.logger.Warn("summary failed", "error", err)
			respondError(w, http.StatusBadGateway, "AI provider error")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"summary": summary})
	}
}

func (s *Server) respondSchedulerError(w http.ResponseWriter, err error) {
	var ce *scheduler.CooldownError
	switch {
	case errors.As(err, &ce):
		w.Header().Set("Retry-After", strconv.Itoa(ce.RemainingSeconds))
		respondJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":                    err.Error(),
			"remainingCooldownSeconds": ce.RemainingSeconds,
		})
	case errors.Is(err, scheduler.ErrAlreadyRunning), errors.Is(err, scheduler.ErrCycleInFlight):
		respondError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("automation request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "automation error")
	}
}
