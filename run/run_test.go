package run_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/blackboard"
	"github.com/agoraflow/agora/event"
	"github.com/agoraflow/agora/pipeline"
	"github.com/agoraflow/agora/protocol"
	"github.com/agoraflow/agora/run"
	"github.com/agoraflow/agora/stage"
)

type memStore struct {
	mu      sync.Mutex
	runs    map[string]run.Record
	steps   []run.StepRecord
	outputs []run.OutputRecord
	agents  map[string]agentmodel.Agent
}

func newMemStore() *memStore {
	return &memStore{runs: map[string]run.Record{}, agents: map[string]agentmodel.Agent{}}
}

func (s *memStore) CreateRun(_ context.Context, rec run.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rec.RunID] = rec
	return nil
}

func (s *memStore) UpdateRunStatus(_ context.Context, runID string, status run.Status, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.runs[runID]
	rec.Status = status
	rec.CompletedAt = completedAt
	s.runs[runID] = rec
	return nil
}

func (s *memStore) CreateRunStep(_ context.Context, step run.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
	return nil
}

func (s *memStore) UpdateRunStepStatus(context.Context, string, int, run.Status, *time.Time) error {
	return nil
}

func (s *memStore) SaveAgentOutput(_ context.Context, out run.OutputRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = append(s.outputs, out)
	return nil
}

func (s *memStore) SaveSynthesis(context.Context, string, *int, string) error { return nil }

func (s *memStore) GetAgent(_ context.Context, key string) (agentmodel.Agent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[key]
	return a, ok, nil
}

func registerEchoProtocol(key string) {
	protocol.Register(key, func(_ context.Context, _ stage.Config, question string, agents []agentmodel.Agent) (*blackboard.Blackboard, error) {
		bb := blackboard.New(key, nil)
		for _, a := range agents {
			bb.Write("outputs", fmt.Sprintf("%s says: %s", a.Name, question), a.Name, "respond", nil)
		}
		bb.Write("synthesis", "synthesized:"+question, "system", "synthesize", nil)
		return bb, nil
	})
}

func TestExecuteProtocolPersistsOutputsAndSynthesis(t *testing.T) {
	registerEchoProtocol("run_test_protocol_1")
	store := newMemStore()
	ctrl := &run.Controller{Store: store}

	var kinds []event.Kind
	err := ctrl.Execute(context.Background(), run.Request{
		RunID: "r1", Kind: run.KindProtocol, ProtocolKey: "run_test_protocol_1",
		Question: "should we ship?", AgentKeys: []string{"ceo", "cfo"},
	}, func(ev event.Event) { kinds = append(kinds, ev.Kind) })

	require.NoError(t, err)
	require.Equal(t, run.StatusCompleted, store.runs["r1"].Status)
	require.Len(t, store.outputs, 2)
	require.Contains(t, kinds, event.KindRunStart)
	require.Contains(t, kinds, event.KindAgentRoster)
	require.Contains(t, kinds, event.KindSynthesis)
	require.Contains(t, kinds, event.KindRunComplete)
}

func TestExecuteRejectsUnknownAgentKey(t *testing.T) {
	store := newMemStore()
	ctrl := &run.Controller{Store: store}

	err := ctrl.Execute(context.Background(), run.Request{
		RunID: "r2", Kind: run.KindProtocol, ProtocolKey: "parallel_synthesis",
		Question: "q", AgentKeys: []string{"nonexistent"},
	}, nil)

	require.Error(t, err)
}

func TestExecutePipelinePersistsStepRecords(t *testing.T) {
	registerEchoProtocol("run_test_protocol_2")
	store := newMemStore()
	ctrl := &run.Controller{Store: store}

	def := &pipeline.Definition{
		Name: "p",
		Steps: []pipeline.Step{
			{ProtocolKey: "run_test_protocol_2", QuestionTemplate: "{prev_output}"},
		},
	}

	err := ctrl.Execute(context.Background(), run.Request{
		RunID: "r3", Kind: run.KindPipeline, Pipeline: def,
		Question: "q0", AgentKeys: []string{"ceo"},
	}, nil)

	require.NoError(t, err)
	require.Len(t, store.steps, 1)
	require.Equal(t, run.StatusCompleted, store.steps[0].Status)
}
