// Package premortem implements Klein's pre-mortem: imagine the plan has
// already failed, generate narrative post-mortems, extract the distinct
// failure modes, then synthesize mitigations — grounded on
// `protocols/p38_klein_premortem/orchestrator.py` in the original source.
package premortem

import (
	"context"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/blackboard"
	"github.com/agoraflow/agora/orchestrator"
	"github.com/agoraflow/agora/protocol"
	"github.com/agoraflow/agora/stage"
	"github.com/agoraflow/agora/trigger"
)

// Key is this protocol's registry key.
const Key = "premortem"

const narrativeTemplate = "It is 18 months from now and this plan has failed completely: {question}\n\n" +
	"Write the story of how it failed — be specific about the sequence of events, not generic risks."

const extractTemplate = "Below are several independent failure narratives for the same plan. " +
	"Extract the distinct underlying failure modes, deduplicating narratives that describe the same root cause.\n\n{input}"

const synthesisTemplate = "You are closing a pre-mortem exercise. For each failure mode, propose a concrete " +
	"mitigation or early-warning signal.\n\nQUESTION:\n{question}\n\nNARRATIVES:\n{narratives}\n\nFAILURE MODES:\n{failure_modes}"

func init() {
	protocol.Register(Key, Run)
}

// Run executes narrative generation, failure-mode extraction, and a
// mitigation synthesis.
func Run(ctx context.Context, cfg stage.Config, question string, agents []agentmodel.Agent) (*blackboard.Blackboard, error) {
	def := orchestrator.Definition{
		ProtocolID: Key,
		Stages: []orchestrator.Stage{
			{
				Name:    "narratives",
				Trigger: trigger.Always(),
				Execute: stage.ParallelAgentStage(cfg, "question", "narratives", narrativeTemplate, true),
			},
			{
				Name:    "failure_modes",
				Trigger: trigger.After("narratives"),
				Execute: stage.MechanicalStage(cfg, "narratives", "failure_modes", extractTemplate, nil),
			},
			{
				Name:    "synthesize",
				Trigger: trigger.AfterAll("narratives", "failure_modes"),
				Execute: stage.SynthesisStage(cfg, []string{"narratives", "failure_modes"}, "synthesis", synthesisTemplate),
			},
		},
	}
	return orchestrator.Run(ctx, def, question, agents)
}
