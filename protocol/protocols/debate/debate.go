// Package debate implements multi-round structured debate: opening
// statements, one or more rebuttal rounds, final statements, then
// synthesis of the evolved positions — grounded on
// `protocols/p04_multi_round_debate/orchestrator.py` in the original
// source.
package debate

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
const Key = "multi_round_debate"

const openingTemplate = "State your opening position on: {question}. Be specific and stake out a clear stance."

const rebuttalTemplate = "Debate question: {question}\n\nPrior arguments so far:\n{prior_responses}\n\n" +
	"Respond to the strongest opposing points and sharpen your position."

const finalTemplate = "Debate question: {question}\n\nFull debate so far:\n{prior_responses}\n\n" +
	"Give your final, most persuasive statement, acknowledging what the debate changed in your view."

const synthesisTemplate = "You are closing out a structured debate. " +
	"Identify where the debaters converged, where they still disagree, and render an actionable conclusion.\n\n" +
	"QUESTION:\n{question}\n\nFULL TRANSCRIPT:\n{round1}\n\n{round2}\n\n{round3}"

func init() {
	protocol.Register(Key, Run)
}

// Run executes three fixed rounds (opening, rebuttal, final) — each
// round's stage reads every prior round's output before contributing —
// then synthesizes the full transcript.
func Run(ctx context.Context, cfg stage.Config, question string, agents []agentmodel.Agent) (*blackboard.Blackboard, error) {
	def := orchestrator.Definition{
		ProtocolID: Key,
		Stages: []orchestrator.Stage{
			{
				Name:    "round1",
				Trigger: trigger.Always(),
				Execute: stage.ParallelAgentStage(cfg, "question", "round1", openingTemplate, true),
			},
			{
				Name:    "round2",
				Trigger: trigger.After("round1"),
				Execute: stage.RoundStage(cfg, []string{"round1"}, "round2", rebuttalTemplate, true),
			},
			{
				Name:    "round3",
				Trigger: trigger.After("round2"),
				Execute: stage.RoundStage(cfg, []string{"round1", "round2"}, "round3", finalTemplate, true),
			},
			{
				Name:    "synthesize",
				Trigger: trigger.AfterAll("round1", "round2", "round3"),
				Execute: stage.SynthesisStage(cfg, []string{"round1", "round2", "round3"}, "synthesis", synthesisTemplate),
			},
		},
	}
	return orchestrator.Run(ctx, def, question, agents)
}
