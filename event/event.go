// Package event defines the discriminated union of progress events carried
// on a run's live stream (spec.md §3, §4.10) and its SSE wire encoding
// (spec.md §6).
package event

import (
	"encoding/json"
	"fmt"
)

// Kind names one of the fixed set of event types a run can emit.
type Kind string

const (
	KindRunStart     Kind = "run_start"
	KindStage        Kind = "stage"
	KindAgentRoster  Kind = "agent_roster"
	KindToolCall     Kind = "tool_call"
	KindToolResult   Kind = "tool_result"
	KindAgentOutput  Kind = "agent_output"
	KindSynthesis    Kind = "synthesis"
	KindStepStart    Kind = "step_start"
	KindStepComplete Kind = "step_complete"
	KindError        Kind = "error"
	KindRunComplete  Kind = "run_complete"
)

// Event is one frame on the live stream. Payload is kind-specific and must
// be JSON-marshalable; every event carries the run it belongs to.
type Event struct {
	Kind    Kind
	RunID   string
	Payload any
}

// RunStartPayload — emitted once, immediately after a run is accepted.
type RunStartPayload struct {
	RunID       string `json:"run_id"`
	ProtocolKey string `json:"protocol_key,omitempty"`
	Type        string `json:"type,omitempty"`
	StepCount   int    `json:"step_count,omitempty"`
}

// StagePayload — a human-readable progress line ("Running protocol...").
type StagePayload struct {
	Message string `json:"message"`
}

// RosterAgent names one resolved agent.
type RosterAgent struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
}

// AgentRosterPayload — the resolved agent list for this run.
type AgentRosterPayload struct {
	Agents []RosterAgent `json:"agents"`
}

// ToolCallPayload — one tool invocation as it's issued.
type ToolCallPayload struct {
	AgentName string `json:"agent_name"`
	ToolName  string `json:"tool_name"`
	Input     string `json:"tool_input"`
	Iteration int    `json:"iteration"`
}

// ToolResultPayload — the result of a tool invocation.
type ToolResultPayload struct {
	AgentName string  `json:"agent_name"`
	ToolName  string  `json:"tool_name"`
	Preview   string  `json:"result_preview"`
	ElapsedMs float64 `json:"elapsed_ms"`
	Iteration int     `json:"iteration"`
}

// AgentOutputPayload — one agent's final text for this run (or step).
type AgentOutputPayload struct {
	AgentKey  string `json:"agent_key"`
	AgentName string `json:"agent_name"`
	Text      string `json:"text"`
	Round     int    `json:"round,omitempty"`
	Step      *int   `json:"step,omitempty"`
}

// SynthesisPayload — the protocol's final aggregated recommendation.
type SynthesisPayload struct {
	Text string `json:"text"`
	Step *int   `json:"step,omitempty"`
}

// StepStartPayload / StepCompletePayload — pipeline step boundaries.
type StepStartPayload struct {
	Step        int    `json:"step"`
	ProtocolKey string `json:"protocol_key"`
}

type StepCompletePayload struct {
	Step        int    `json:"step"`
	ProtocolKey string `json:"protocol_key"`
}

// ErrorPayload — a run-terminating failure.
type ErrorPayload struct {
	Message    string `json:"message"`
	Stacktrace string `json:"traceback,omitempty"`
}

// RunCompletePayload — terminal event; always the last frame.
type RunCompletePayload struct {
	RunID          string  `json:"run_id"`
	Status         string  `json:"status"`
	ElapsedSeconds float64 `json:"elapsed_seconds,omitempty"`
}

// SSE renders the event as a single `event: <name>\ndata: <json>\n\n` frame,
// per spec.md §6's streaming wire format.
func (e Event) SSE() (string, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return "", fmt.Errorf("event: marshal %s payload: %w", e.Kind, err)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.Kind, data), nil
}
