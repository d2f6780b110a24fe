package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agoraflow/agora/event"
	"github.com/agoraflow/agora/pipeline"
	"github.com/agoraflow/agora/run"
)

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no store configured"})
		return
	}
	runs, err := s.Store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no store configured"})
		return
	}
	id := chi.URLParam(r, "id")
	rec, ok, err := s.Store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown run id"})
		return
	}
	outputs, err := s.Store.ListOutputsForRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": rec, "outputs": outputs})
}

// protocolRunRequest is the wire body for POST /api/runs/protocol.
type protocolRunRequest struct {
	ProtocolKey        string   `json:"protocol_key"`
	Question           string   `json:"question"`
	AgentKeys          []string `json:"agent_keys"`
	ThinkingModel      string   `json:"thinking_model,omitempty"`
	OrchestrationModel string   `json:"orchestration_model,omitempty"`
	NoTools            bool     `json:"no_tools,omitempty"`
}

func (s *Server) handleRunProtocol(w http.ResponseWriter, r *http.Request) {
	var body protocolRunRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.ProtocolKey == "" || body.Question == "" || len(body.AgentKeys) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "protocol_key, question, and agent_keys are required"})
		return
	}

	req := run.Request{
		RunID: uuid.NewString(), Kind: run.KindProtocol, ProtocolKey: body.ProtocolKey,
		Question: body.Question, AgentKeys: body.AgentKeys, ThinkingModel: body.ThinkingModel,
		OrchestrationModel: body.OrchestrationModel, NoTools: body.NoTools,
	}
	s.streamRun(w, r, req)
}

// pipelineRunRequest is the wire body for POST /api/runs/pipeline.
type pipelineRunRequest struct {
	Pipeline  pipeline.Definition `json:"pipeline"`
	Question  string              `json:"question"`
	AgentKeys []string            `json:"agent_keys"`
}

func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	var body pipelineRunRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(body.Pipeline.Steps) == 0 || body.Question == "" || len(body.AgentKeys) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pipeline.steps, question, and agent_keys are required"})
		return
	}

	req := run.Request{
		RunID: uuid.NewString(), Kind: run.KindPipeline, Pipeline: &body.Pipeline,
		Question: body.Question, AgentKeys: body.AgentKeys,
	}
	s.streamRun(w, r, req)
}

// streamRun drives req through the controller, writing each event as an
// SSE frame as it's emitted and flushing after every frame so the client
// sees progress live rather than buffered until completion.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, req run.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	emit := func(ev event.Event) {
		frame, err := ev.SSE()
		if err != nil {
			return
		}
		_, _ = w.Write([]byte(frame))
		flusher.Flush()
	}

	_ = s.Controller.Execute(r.Context(), req, emit)
}
