package stage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/blackboard"
	"github.com/agoraflow/agora/llmgateway"
	"github.com/agoraflow/agora/stage"
)

type fakeGateway struct {
	text string
}

func (f fakeGateway) Complete(_ context.Context, req llmgateway.Request) (llmgateway.Response, error) {
	return llmgateway.Response{Text: f.text + ":" + req.Messages[0].Content, InputTokens: 10, OutputTokens: 5}, nil
}

func newCfg(text string) stage.Config {
	return stage.Config{Gateway: llmgateway.NewRouter(fakeGateway{text: text}, nil, nil)}
}

func TestParallelAgentStageWritesOnePerAgent(t *testing.T) {
	bb := blackboard.New("p", nil)
	bb.Write("question", "what next", "system", "question", nil)

	agents := []agentmodel.Agent{{Name: "cfo"}, {Name: "cto"}}
	exec := stage.ParallelAgentStage(newCfg("resp"), "question", "perspectives", "{question}", false)

	require.NoError(t, exec(context.Background(), bb, agents))
	require.Len(t, bb.Read("perspectives", nil), 2)
}

func TestSequentialAgentStageSeesPriorOutputs(t *testing.T) {
	bb := blackboard.New("p", nil)
	bb.Write("question", "q", "system", "question", nil)

	agents := []agentmodel.Agent{{Name: "a"}, {Name: "b"}}
	exec := stage.SequentialAgentStage(newCfg("r"), "question", "round1", "{prior_responses}|{question}")

	require.NoError(t, exec(context.Background(), bb, agents))
	entries := bb.Read("round1", nil)
	require.Len(t, entries, 2)
	require.Contains(t, entries[1].Content.(string), "[a]:")
}

func TestRoundStageFiltersTranscriptPerAgentScope(t *testing.T) {
	bb := blackboard.New("p", nil)
	bb.Write("question", "q", "system", "question", nil)
	bb.Write("round0", "public take", "cfo", "round0", nil)
	bb.Write("round0", "secret take", "cto", "round0", map[string]any{"scope": "engineering"})

	agents := []agentmodel.Agent{{Name: "cfo", ContextScope: []string{"finance"}}}
	exec := stage.RoundStage(newCfg("r"), []string{"round0"}, "round1", "{prior_responses}", false)

	require.NoError(t, exec(context.Background(), bb, agents))
	entries := bb.Read("round1", nil)
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].Content.(string), "public take")
	require.NotContains(t, entries[0].Content.(string), "secret take")
}

func TestMechanicalStageNoOpOnEmptyInput(t *testing.T) {
	bb := blackboard.New("p", nil)
	exec := stage.MechanicalStage(newCfg("r"), "nothing", "out", "{input}", nil)
	require.NoError(t, exec(context.Background(), bb, nil))
	require.False(t, bb.HasTopic("out"))
}

func TestMechanicalStageAppliesParseFn(t *testing.T) {
	bb := blackboard.New("p", nil)
	bb.Write("in", "hello", "a", "in", nil)

	parse := func(s string) any { return len(s) }
	exec := stage.MechanicalStage(newCfg("r"), "in", "out", "{input}", parse)

	require.NoError(t, exec(context.Background(), bb, nil))
	entry := bb.ReadLatest("out", nil)
	require.NotNil(t, entry)
	_, ok := entry.Content.(int)
	require.True(t, ok)
}

func TestSynthesisStageAggregatesTopics(t *testing.T) {
	bb := blackboard.New("p", nil)
	bb.Write("question", "q", "system", "question", nil)
	bb.Write("perspectives", "p1", "cfo", "parallel_query", nil)

	exec := stage.SynthesisStage(newCfg("r"), []string{"perspectives"}, "synthesis", "{perspectives}")
	require.NoError(t, exec(context.Background(), bb, nil))
	require.True(t, bb.HasTopic("synthesis"))
}
