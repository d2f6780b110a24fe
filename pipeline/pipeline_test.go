package pipeline_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/blackboard"
	"github.com/agoraflow/agora/event"
	"github.com/agoraflow/agora/pipeline"
	"github.com/agoraflow/agora/protocol"
	"github.com/agoraflow/agora/stage"
)

// echoProtocol writes the question it received as its synthesis, so a
// pipeline test can assert exact passthrough substitution without an
// LLM gateway.
func echoProtocol(key string) {
	protocol.Register(key, func(_ context.Context, _ stage.Config, question string, _ []agentmodel.Agent) (*blackboard.Blackboard, error) {
		bb := blackboard.New(key, nil)
		bb.Write("synthesis", fmt.Sprintf("echo:%s", question), "system", "synthesize", nil)
		return bb, nil
	})
}

func TestRunSubstitutesPrevOutputOnPassthrough(t *testing.T) {
	echoProtocol("pipeline_test_echo_1")

	def := pipeline.Definition{
		Name: "test",
		Steps: []pipeline.Step{
			{ProtocolKey: "pipeline_test_echo_1", QuestionTemplate: "{prev_output}", OutputPassthrough: true},
			{ProtocolKey: "pipeline_test_echo_1", QuestionTemplate: "Given: {prev_output}", OutputPassthrough: true},
		},
	}

	results, err := pipeline.Run(context.Background(), "run1", def, "S0", nil, stage.Config{}, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "echo:S0", results[0].Result.Synthesis)
	require.Equal(t, "Given: echo:S0", results[1].Question)
}

func TestRunStopsAtUnknownProtocol(t *testing.T) {
	def := pipeline.Definition{
		Steps: []pipeline.Step{
			{ProtocolKey: "does_not_exist", QuestionTemplate: "{prev_output}"},
		},
	}
	_, err := pipeline.Run(context.Background(), "run2", def, "S0", nil, stage.Config{}, nil)
	require.Error(t, err)
}

func TestRunEmitsStepEvents(t *testing.T) {
	echoProtocol("pipeline_test_echo_2")

	def := pipeline.Definition{
		Steps: []pipeline.Step{
			{ProtocolKey: "pipeline_test_echo_2", QuestionTemplate: "{prev_output}"},
		},
	}

	var kinds []event.Kind
	_, err := pipeline.Run(context.Background(), "run3", def, "S0", nil, stage.Config{}, func(ev event.Event) {
		kinds = append(kinds, ev.Kind)
	})
	require.NoError(t, err)
	require.Contains(t, kinds, event.KindStepStart)
	require.Contains(t, kinds, event.KindSynthesis)
	require.Contains(t, kinds, event.KindStepComplete)
}
