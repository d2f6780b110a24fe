// Package httpapi is the thin HTTP surface spec.md §6 describes: agent,
// team, and pipeline CRUD backed by store.DB, a run history list/get,
// and two SSE streaming endpoints that drive run.Controller directly.
// Grounded on the router/middleware shape of `pkg/transport` in the
// teacher repo, adapted from gRPC-gateway onto a plain chi.Router.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agoraflow/agora/metrics"
	"github.com/agoraflow/agora/protocol"
	"github.com/agoraflow/agora/run"
	"github.com/agoraflow/agora/store"
)

// Config carries the settings the server needs beyond its dependencies:
// the shared-secret auth header value, a dev bypass for local runs, and
// the single allowed CORS origin (empty disables CORS headers).
type Config struct {
	AuthSharedSecret string
	DevBypassAuth    bool
	CORSOrigin       string
}

// Server wires the run controller and store into a chi.Router.
type Server struct {
	Controller *run.Controller
	Store      *store.DB
	Config     Config
}

// Router builds the HTTP handler. Store may be nil; each handler decides
// how to answer without it, and protocol/pipeline runs still work
// without persistence (matching run.Controller's nil-Store tolerance).
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(s.cors)

	r.Get("/api/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/api/protocols", s.handleListProtocols)

		r.Route("/api/agents", func(r chi.Router) {
			r.Get("/", s.handleListAgents)
			r.Post("/", s.handleCreateAgent)
			r.Get("/{key}", s.handleGetAgent)
		})

		r.Route("/api/teams", func(r chi.Router) {
			r.Get("/", s.handleListTeams)
			r.Post("/", s.handleCreateTeam)
		})

		r.Route("/api/pipelines", func(r chi.Router) {
			r.Get("/", s.handleListPipelines)
			r.Post("/", s.handleCreatePipeline)
			r.Get("/{id}", s.handleGetPipeline)
		})

		r.Route("/api/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Get("/{id}", s.handleGetRun)
			r.Post("/protocol", s.handleRunProtocol)
			r.Post("/pipeline", s.handleRunPipeline)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"protocols": len(protocol.Keys()),
	})
}

func (s *Server) handleListProtocols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"protocols": protocol.Keys()})
}
