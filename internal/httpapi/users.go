package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mcontarini/converse/internal/menu"
	"github.com/mcontarini/converse/internal/proficiency"
)

type recordEventRequest struct {
	Kind string `json:"kind"`
}

type menuDecisionRequest struct {
	DisplayMode       string `json:"display_mode"`
	IsError           bool   `json:"is_error"`
	IsIdle            bool   `json:"is_idle"`
	IsExplicitRequest bool   `json:"is_explicit_request"`
}

var validEventKinds = map[proficiency.EventKind]bool{
	proficiency.EventMessage:      true,
	proficiency.EventNLPSuccess:   true,
	proficiency.EventNLPFailure:   true,
	proficiency.EventMenuRequest:  true,
	proficiency.EventCommandUsage: true,
	proficiency.EventError:        true,
}

var validDisplayModes = map[menu.DisplayMode]bool{
	menu.ModeAlways:     true,
	menu.ModeNever:      true,
	menu.ModeErrorsOnly: true,
	menu.ModeAdaptive:   true,
}

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req recordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	kind := proficiency.EventKind(req.Kind)
	if !validEventKinds[kind] {
		respondError(w, http.StatusBadRequest, "invalid_request", "unknown event kind")
		return
	}

	// Record fails open on store trouble; accepted means "observed", not
	// "durably counted".
	s.prof.Record(r.Context(), userID, kind)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleProficiency(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if r.URL.Query().Get("format") == "text" {
		report, err := s.prof.Report(r.Context(), userID)
		if errors.Is(err, proficiency.ErrNotFound) {
			respondError(w, http.StatusNotFound, "metrics_not_found", "no metrics for user")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "store_error", err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(report))
		return
	}

	summary, err := s.prof.Summarize(r.Context(), userID)
	if errors.Is(err, proficiency.ErrNotFound) {
		respondError(w, http.StatusNotFound, "metrics_not_found", "no metrics for user")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleMenuDecision(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req menuDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	mode := menu.DisplayMode(req.DisplayMode)
	if mode == "" {
		mode = menu.ModeAdaptive
	}
	if !validDisplayModes[mode] {
		respondError(w, http.StatusBadRequest, "invalid_request", "unknown display mode")
		return
	}

	decision := s.policy.Decide(r.Context(), userID, mode, menu.TurnContext{
		IsError:           req.IsError,
		IsIdle:            req.IsIdle,
		IsExplicitRequest: req.IsExplicitRequest,
	})
	respondJSON(w, http.StatusOK, decision)
}
