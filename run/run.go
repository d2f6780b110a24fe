// Package run is the top layer: it resolves a protocol or pipeline by
// key, hydrates the agent roster, wires the live event stream into the
// LLM gateway, drives execution to completion, and persists every
// artifact along the way. Grounded on `api/runner.py`'s
// `run_protocol_stream`/`run_pipeline_stream` in the original source.
package run

import (
	"context"
	"fmt"
	"time"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/event"
	"github.com/agoraflow/agora/llmgateway"
	"github.com/agoraflow/agora/metrics"
	"github.com/agoraflow/agora/pipeline"
	"github.com/agoraflow/agora/protocol"
	"github.com/agoraflow/agora/protocolresult"
	"github.com/agoraflow/agora/stage"
	"github.com/agoraflow/agora/tool"
)

// Kind distinguishes a single-protocol run from a pipeline run.
type Kind string

const (
	KindProtocol Kind = "protocol"
	KindPipeline Kind = "pipeline"
)

// Status mirrors the monotonic pending -> running -> completed|failed
// lifecycle spec.md §3 requires of a persisted run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is the persisted run row.
type Record struct {
	RunID       string
	Kind        Kind
	ProtocolKey string
	PipelineID  string
	Question    string
	AgentKeys   []string
	Status      Status
	StartedAt   time.Time
	CompletedAt *time.Time
}

// StepRecord is the persisted run-step row for a pipeline run.
type StepRecord struct {
	RunID       string
	Index       int
	ProtocolKey string
	Status      Status
	StartedAt   time.Time
	CompletedAt *time.Time
}

// OutputRecord is one persisted agent output.
type OutputRecord struct {
	RunID        string
	RunStepID    *int
	AgentKey     string
	AgentName    string
	ModelID      string
	Text         string
	Round        int
	InputTokens  int
	OutputTokens int
}

// Store is the persistence boundary the controller writes through.
// store/sqlite and store/postgres both implement it; a nil Store
// disables persistence entirely (useful for tests and for the CLI's
// one-shot `run` subcommand).
type Store interface {
	CreateRun(ctx context.Context, rec Record) error
	UpdateRunStatus(ctx context.Context, runID string, status Status, completedAt *time.Time) error
	CreateRunStep(ctx context.Context, step StepRecord) error
	UpdateRunStepStatus(ctx context.Context, runID string, index int, status Status, completedAt *time.Time) error
	SaveAgentOutput(ctx context.Context, out OutputRecord) error
	SaveSynthesis(ctx context.Context, runID string, stepIndex *int, text string) error
	GetAgent(ctx context.Context, key string) (agentmodel.Agent, bool, error)
}

// Request describes one run to execute.
type Request struct {
	RunID              string
	Kind               Kind
	ProtocolKey        string
	Pipeline           *pipeline.Definition
	Question           string
	AgentKeys          []string
	ThinkingModel      string
	OrchestrationModel string
	NoTools            bool
}

// Controller is the run layer's single entry point.
type Controller struct {
	Gateway             *llmgateway.Router
	Tools               *tool.Registry
	Store               Store
	ThinkingModel       string
	OrchestrationModel  string
	ThinkingBudget      int
	ParallelConcurrency int
}

// Execute resolves agents, drives the named protocol or pipeline to
// completion, and emits every event on the way. emit may be nil for a
// one-shot caller that only wants the final error. Cancelling ctx stops
// execution before the next stage/step starts; the run is persisted as
// failed and no further provider calls are made.
func (c *Controller) Execute(ctx context.Context, req Request, emit func(event.Event)) error {
	send := func(ev event.Event) {
		if emit != nil {
			ev.RunID = req.RunID
			emit(ev)
		}
	}

	agents, err := c.resolveAgents(ctx, req.AgentKeys)
	if err != nil {
		send(event.Event{Kind: event.KindError, Payload: event.ErrorPayload{Message: err.Error()}})
		return err
	}

	rec := Record{
		RunID:       req.RunID,
		Kind:        req.Kind,
		ProtocolKey: req.ProtocolKey,
		Question:    req.Question,
		AgentKeys:   req.AgentKeys,
		Status:      StatusRunning,
		StartedAt:   time.Now(),
	}
	if req.Pipeline != nil {
		rec.PipelineID = req.Pipeline.Name
	}
	if c.Store != nil {
		if err := c.Store.CreateRun(ctx, rec); err != nil {
			return fmt.Errorf("run: persist run record: %w", err)
		}
	}

	send(event.Event{Kind: event.KindRunStart, Payload: event.RunStartPayload{
		RunID: req.RunID, ProtocolKey: req.ProtocolKey, Type: string(req.Kind),
		StepCount: pipelineStepCount(req.Pipeline),
	}})
	send(event.Event{Kind: event.KindAgentRoster, Payload: event.AgentRosterPayload{Agents: rosterOf(agents)}})

	ctx = llmgateway.WithRunID(ctx, req.RunID)
	ctx = llmgateway.WithEvents(ctx, send)
	if req.NoTools {
		ctx = llmgateway.WithNoTools(ctx)
	}

	cfg := stage.Config{
		Gateway:             c.Gateway,
		Tools:               c.Tools,
		ThinkingModel:       firstNonEmpty(req.ThinkingModel, c.ThinkingModel),
		ThinkingBudget:      c.ThinkingBudget,
		OrchestrationModel:  firstNonEmpty(req.OrchestrationModel, c.OrchestrationModel),
		ParallelConcurrency: c.ParallelConcurrency,
	}

	var runErr error
	switch req.Kind {
	case KindPipeline:
		runErr = c.runPipeline(ctx, req, agents, cfg, send)
	default:
		runErr = c.runProtocol(ctx, req, agents, cfg, send)
	}

	completed := time.Now()
	status := StatusCompleted
	if runErr != nil {
		status = StatusFailed
	}
	if c.Store != nil {
		_ = c.Store.UpdateRunStatus(context.WithoutCancel(ctx), req.RunID, status, &completed)
	}
	metrics.RunsTotal.WithLabelValues(string(req.Kind), string(status)).Inc()

	if runErr != nil {
		send(event.Event{Kind: event.KindError, Payload: event.ErrorPayload{Message: runErr.Error()}})
	}
	send(event.Event{Kind: event.KindRunComplete, Payload: event.RunCompletePayload{
		RunID: req.RunID, Status: string(status), ElapsedSeconds: completed.Sub(rec.StartedAt).Seconds(),
	}})

	return runErr
}

func (c *Controller) runProtocol(ctx context.Context, req Request, agents []agentmodel.Agent, cfg stage.Config, send func(event.Event)) error {
	runner, ok := protocol.Lookup(req.ProtocolKey)
	if !ok {
		return fmt.Errorf("run: unknown protocol key %q", req.ProtocolKey)
	}

	send(event.Event{Kind: event.KindStage, Payload: event.StagePayload{Message: fmt.Sprintf("running %s", req.ProtocolKey)}})
	bb, err := runner(ctx, cfg, req.Question, agents)
	if bb == nil {
		return err
	}
	sig := bb.ResourceSignals()
	metrics.RecordResourceSignals(req.ProtocolKey, sig.EntryCount, sig.TotalInputTokens, sig.TotalOutputTokens)

	result := protocolresult.Extract(bb, NameToKey(agents))
	for _, out := range result.Outputs {
		send(event.Event{Kind: event.KindAgentOutput, Payload: event.AgentOutputPayload{
			AgentKey: out.AgentKey, AgentName: out.AgentName, Text: out.Text, Round: out.Round,
		}})
		if c.Store != nil {
			_ = c.Store.SaveAgentOutput(ctx, OutputRecord{
				RunID: req.RunID, AgentKey: out.AgentKey, AgentName: out.AgentName, Text: out.Text, Round: out.Round,
				InputTokens: out.InputTokens, OutputTokens: out.OutputTokens,
			})
		}
	}
	if result.Synthesis != "" {
		send(event.Event{Kind: event.KindSynthesis, Payload: event.SynthesisPayload{Text: result.Synthesis}})
		if c.Store != nil {
			_ = c.Store.SaveSynthesis(ctx, req.RunID, nil, result.Synthesis)
		}
	}

	return err
}

func (c *Controller) runPipeline(ctx context.Context, req Request, agents []agentmodel.Agent, cfg stage.Config, send func(event.Event)) error {
	if req.Pipeline == nil {
		return fmt.Errorf("run: pipeline run requested with no pipeline definition")
	}

	results, err := pipeline.Run(ctx, req.RunID, *req.Pipeline, req.Question, agents, cfg, send)
	for _, step := range results {
		index := step.Index
		status := StatusCompleted
		if step.Err != nil {
			status = StatusFailed
		}
		if c.Store != nil {
			_ = c.Store.CreateRunStep(ctx, StepRecord{
				RunID: req.RunID, Index: index, ProtocolKey: step.ProtocolKey,
				Status: status, StartedAt: step.StartedAt, CompletedAt: &step.CompletedAt,
			})
			for _, out := range step.Result.Outputs {
				_ = c.Store.SaveAgentOutput(ctx, OutputRecord{
					RunID: req.RunID, RunStepID: &index, AgentKey: out.AgentKey, AgentName: out.AgentName,
					Text: out.Text, Round: out.Round, InputTokens: out.InputTokens, OutputTokens: out.OutputTokens,
				})
			}
			if step.Result.Synthesis != "" {
				_ = c.Store.SaveSynthesis(ctx, req.RunID, &index, step.Result.Synthesis)
			}
		}
	}
	return err
}

// resolveAgents hydrates every requested key against the builtin
// roster first, falling back to the store for custom agents.
func (c *Controller) resolveAgents(ctx context.Context, keys []string) ([]agentmodel.Agent, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("run: at least one agent key is required")
	}
	agents := make([]agentmodel.Agent, 0, len(keys))
	for _, key := range keys {
		if a, ok := agentmodel.Builtin[key]; ok {
			agents = append(agents, a)
			continue
		}
		if c.Store == nil {
			return nil, fmt.Errorf("run: unknown agent key %q", key)
		}
		a, ok, err := c.Store.GetAgent(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("run: load agent %q: %w", key, err)
		}
		if !ok {
			return nil, fmt.Errorf("run: unknown agent key %q", key)
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// NameToKey builds the best-effort agent-key list protocolresult.Extract
// uses to map a blackboard entry's author back to a stable key.
func NameToKey(agents []agentmodel.Agent) []string {
	keys := make([]string, len(agents))
	for i, a := range agents {
		keys[i] = agentmodel.KeyFor(a)
	}
	return keys
}

func rosterOf(agents []agentmodel.Agent) []event.RosterAgent {
	out := make([]event.RosterAgent, len(agents))
	for i, a := range agents {
		out[i] = event.RosterAgent{Key: agentmodel.KeyFor(a), DisplayName: a.Name}
	}
	return out
}

func pipelineStepCount(def *pipeline.Definition) int {
	if def == nil {
		return 0
	}
	return len(def.Steps)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
