package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/run"
	"github.com/agoraflow/agora/store"
	"github.com/agoraflow/agora/store/sqlite"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateAndGetAgentRecordRoundTrips(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rec := store.AgentRecord{
		Key:          "chief-skeptic",
		Name:         "Chief Skeptic",
		SystemPrompt: "You challenge every assumption.",
		Tools:        []string{"calculator"},
		Categories:   []string{"red"},
		Frameworks: []agentmodel.Framework{
			{Name: "Pre-mortem", Description: "Imagine failure", WhenToUse: "Before committing to a plan"},
		},
	}
	require.NoError(t, db.CreateAgentRecord(ctx, rec))

	got, ok, err := db.GetAgentRecord(ctx, "chief-skeptic")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Chief Skeptic", got.Name)
	require.Equal(t, []string{"calculator"}, got.Tools)
	require.Equal(t, []string{"red"}, got.Categories)
	require.Len(t, got.Frameworks, 1)

	agent, ok, err := db.GetAgent(ctx, "chief-skeptic")
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, agent.SystemPrompt, "You challenge every assumption.")
	require.Contains(t, agent.SystemPrompt, "Pre-mortem")
}

func TestGetAgentUnknownKeyReturnsNotOK(t *testing.T) {
	db := openTestDB(t)
	_, ok, err := db.GetAgent(context.Background(), "nonexistent")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunLifecyclePersists(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rec := run.Record{
		RunID: "r1", Kind: run.KindProtocol, ProtocolKey: "parallel_synthesis",
		Question: "q", AgentKeys: []string{"ceo"}, Status: run.StatusRunning, StartedAt: time.Now(),
	}
	require.NoError(t, db.CreateRun(ctx, rec))

	require.NoError(t, db.SaveAgentOutput(ctx, run.OutputRecord{RunID: "r1", AgentKey: "ceo", AgentName: "CEO", Text: "ship it"}))
	require.NoError(t, db.SaveSynthesis(ctx, "r1", nil, "final answer"))

	completed := time.Now()
	require.NoError(t, db.UpdateRunStatus(ctx, "r1", run.StatusCompleted, &completed))
}

func TestPipelineRoundTrips(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	p := store.Pipeline{
		ID:   "p1",
		Name: "two-step",
		Steps: []store.PipelineStep{
			{Order: 0, ProtocolKey: "parallel_synthesis", QuestionTemplate: "{prev_output}", OutputPassthrough: true},
			{Order: 1, ProtocolKey: "debate", QuestionTemplate: "Given: {prev_output}"},
		},
	}
	require.NoError(t, db.CreatePipeline(ctx, p))

	got, ok, err := db.GetPipeline(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "two-step", got.Name)
	require.Len(t, got.Steps, 2)
	require.Equal(t, "debate", got.Steps[1].ProtocolKey)
}
