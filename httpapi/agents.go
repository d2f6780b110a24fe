package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/store"
)

// agentPayload is the wire shape for creating a custom agent; it mirrors
// store.AgentRecord minus the server-assigned timestamps.
type agentPayload struct {
	Key                 string                 `json:"key"`
	Name                string                 `json:"name"`
	SystemPrompt        string                 `json:"system_prompt"`
	ModelID             string                 `json:"model_id,omitempty"`
	MaxOutputTokens     int                    `json:"max_output_tokens,omitempty"`
	Temperature         float64                `json:"temperature,omitempty"`
	Tools               []string               `json:"tools,omitempty"`
	ContextScope        []string               `json:"context_scope,omitempty"`
	Categories          []string               `json:"categories,omitempty"`
	Frameworks          []agentmodel.Framework `json:"frameworks,omitempty"`
	DeliverableTemplate string                 `json:"deliverable_template,omitempty"`
	CommunicationStyle  string                 `json:"communication_style,omitempty"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no store configured"})
		return
	}
	recs, err := s.Store.ListAgentRecords(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": recs, "builtin": builtinKeys()})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if a, ok := agentmodel.Builtin[key]; ok {
		writeJSON(w, http.StatusOK, a)
		return
	}
	if s.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no store configured"})
		return
	}
	rec, ok, err := s.Store.GetAgentRecord(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown agent key"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no store configured"})
		return
	}
	var p agentPayload
	if err := readJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if p.Key == "" || p.Name == "" || p.SystemPrompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "key, name, and system_prompt are required"})
		return
	}
	rec := store.AgentRecord{
		Key: p.Key, Name: p.Name, SystemPrompt: p.SystemPrompt, ModelID: p.ModelID,
		MaxOutputTokens: p.MaxOutputTokens, Temperature: p.Temperature, Tools: p.Tools,
		ContextScope: p.ContextScope, Categories: p.Categories, Frameworks: p.Frameworks,
		DeliverableTemplate: p.DeliverableTemplate, CommunicationStyle: p.CommunicationStyle,
	}
	if err := s.Store.CreateAgentRecord(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func builtinKeys() []string {
	keys := make([]string, 0, len(agentmodel.Builtin))
	for k := range agentmodel.Builtin {
		keys = append(keys, k)
	}
	return keys
}
