package httpapi

import (
	"net/http"

	"github.com/agoraflow/agora/store"
)

type teamPayload struct {
	Key       string   `json:"key"`
	Name      string   `json:"name"`
	AgentKeys []string `json:"agent_keys"`
}

func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no store configured"})
		return
	}
	teams, err := s.Store.ListTeams(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": teams})
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no store configured"})
		return
	}
	var p teamPayload
	if err := readJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if p.Key == "" || len(p.AgentKeys) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "key and at least one agent_key are required"})
		return
	}
	t := store.Team{Key: p.Key, Name: p.Name, AgentKeys: p.AgentKeys}
	if err := s.Store.CreateTeam(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}
