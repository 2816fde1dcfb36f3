package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mcontarini/converse/internal/config"
	"github.com/mcontarini/converse/internal/kv"
	"github.com/mcontarini/converse/internal/logger"
	"github.com/mcontarini/converse/internal/menu"
	"github.com/mcontarini/converse/internal/observability"
	"github.com/mcontarini/converse/internal/proficiency"
	"github.com/mcontarini/converse/internal/session"
)

// Server exposes the session layer to the upstream conversation handler and
// to operational tooling.
type Server struct {
	cfg      config.Config
	sessions *session.Manager
	prof     *proficiency.Model
	policy   *menu.Engine
	kvs      kv.Store
	metrics  *observability.Metrics
	log      *logger.Logger
}

func New(cfg config.Config, sessions *session.Manager, prof *proficiency.Model, policy *menu.Engine, kvs kv.Store, metrics *observability.Metrics, log *logger.Logger) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		prof:     prof,
		policy:   policy,
		kvs:      kvs,
		metrics:  metrics,
		log:      log.With("component", "httpapi"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sessions", s.handleListSessions)
		r.Route("/sessions/{userID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Put("/", s.handleSetState)
			r.Delete("/", s.handleClearSession)
			r.Patch("/context", s.handleMergeContext)
			r.Post("/history", s.handleAppendHistory)
		})
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/events", s.handleRecordEvent)
			r.Get("/proficiency", s.handleProficiency)
			r.Post("/menu-decision", s.handleMenuDecision)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.kvs.Ping(ctx); err != nil {
		s.log.Warn("readiness probe failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
