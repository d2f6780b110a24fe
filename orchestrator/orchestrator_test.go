package orchestrator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/blackboard"
	"github.com/agoraflow/agora/orchestrator"
	"github.com/agoraflow/agora/trigger"
)

func writeStage(topic string) func(ctx context.Context, bb *blackboard.Blackboard, agents []agentmodel.Agent) error {
	return func(_ context.Context, bb *blackboard.Blackboard, _ []agentmodel.Agent) error {
		bb.Write(topic, "done", "system", topic, nil)
		return nil
	}
}

func TestRunFiresStagesInDependencyOrder(t *testing.T) {
	def := orchestrator.Definition{
		ProtocolID: "test",
		Stages: []orchestrator.Stage{
			{Name: "s1", Trigger: trigger.Always(), Execute: writeStage("s1")},
			{Name: "s2", Trigger: trigger.After("s1"), Execute: writeStage("s2")},
		},
	}
	bb, err := orchestrator.Run(context.Background(), def, "q", nil)
	require.NoError(t, err)
	require.True(t, bb.HasTopic("s1"))
	require.True(t, bb.HasTopic("s2"))
}

func TestRunTerminatesWhenNoStageFires(t *testing.T) {
	def := orchestrator.Definition{
		ProtocolID: "deadlock",
		Stages: []orchestrator.Stage{
			{Name: "never", Trigger: trigger.After("nonexistent"), Execute: writeStage("never")},
		},
	}
	bb, err := orchestrator.Run(context.Background(), def, "q", nil)
	require.NoError(t, err)
	require.False(t, bb.HasTopic("never"))
}

func TestRunFiltersAgentsByCategory(t *testing.T) {
	var seen []string
	capture := func(_ context.Context, _ *blackboard.Blackboard, agents []agentmodel.Agent) error {
		for _, a := range agents {
			seen = append(seen, a.Name)
		}
		return nil
	}
	agents := []agentmodel.Agent{
		{Name: "red1", Categories: []string{"red"}},
		{Name: "blue1", Categories: []string{"blue"}},
	}
	def := orchestrator.Definition{
		ProtocolID: "filter",
		Stages: []orchestrator.Stage{
			{Name: "red_only", Trigger: trigger.Always(), Execute: capture, AgentsFilter: "@red"},
		},
	}
	_, err := orchestrator.Run(context.Background(), def, "q", agents)
	require.NoError(t, err)
	require.Equal(t, []string{"red1"}, seen)
}
