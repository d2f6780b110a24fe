package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agoraflow/agora/store"
)

type pipelinePayload struct {
	ID    string
	Name  string
	Steps []store.PipelineStep
}

func (s *Server) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"error": "listing is by id only; POST to create, GET /{id} to fetch"})
}

func (s *Server) handleCreatePipeline(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no store configured"})
		return
	}
	var p pipelinePayload
	if err := readJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if p.ID == "" || len(p.Steps) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id and at least one step are required"})
		return
	}
	def := store.Pipeline{ID: p.ID, Name: p.Name, Steps: p.Steps}
	if err := s.Store.CreatePipeline(r.Context(), def); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

func (s *Server) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no store configured"})
		return
	}
	id := chi.URLParam(r, "id")
	def, ok, err := s.Store.GetPipeline(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown pipeline id"})
		return
	}
	writeJSON(w, http.StatusOK, def)
}
