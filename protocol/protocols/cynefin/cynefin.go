// Package cynefin implements a Cynefin domain probe: agents independently
// classify the problem into Clear, Complicated, Complex, or Chaotic, a
// mechanical pass resolves the consensus domain, agents respond with
// domain-appropriate moves, and a synthesis closes out the probe —
// grounded on `protocols/p23_cynefin_probe/orchestrator.py` in the
// original source.
package cynefin

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
const Key = "cynefin_probe"

const classifyTemplate = "Classify this situation into exactly one Cynefin domain — Clear, Complicated, " +
	"Complex, or Chaotic — and justify it in one sentence: {question}"

const resolveTemplate = "Votes for this situation's Cynefin domain:\n{input}\n\n" +
	"State the majority domain and briefly note any dissent."

const respondTemplate = "The situation has been classified into a Cynefin domain:\n{domain}\n\n" +
	"QUESTION:\n{question}\n\nPropose the domain-appropriate move: sense-categorize-respond for Clear, " +
	"sense-analyze-respond for Complicated, probe-sense-respond for Complex, or act-sense-respond for Chaotic."

const synthesisTemplate = "Close out this Cynefin probe.\n\nQUESTION:\n{question}\n\nDOMAIN:\n{domain}\n\n" +
	"PROPOSED RESPONSES:\n{responses}"

func init() {
	protocol.Register(Key, Run)
}

// Run classifies the domain, resolves consensus, gathers domain-fit
// responses, and synthesizes.
func Run(ctx context.Context, cfg stage.Config, question string, agents []agentmodel.Agent) (*blackboard.Blackboard, error) {
	def := orchestrator.Definition{
		ProtocolID: Key,
		Stages: []orchestrator.Stage{
			{
				Name:    "classify",
				Trigger: trigger.Always(),
				Execute: stage.ParallelAgentStage(cfg, "question", "votes", classifyTemplate, false),
			},
			{
				Name:    "resolve",
				Trigger: trigger.After("votes"),
				Execute: stage.MechanicalStage(cfg, "votes", "domain", resolveTemplate, nil),
			},
			{
				Name:    "respond",
				Trigger: trigger.After("domain"),
				Execute: stage.RoundStage(cfg, []string{"domain"}, "responses", respondTemplate, true),
			},
			{
				Name:    "synthesize",
				Trigger: trigger.AfterAll("domain", "responses"),
				Execute: stage.SynthesisStage(cfg, []string{"domain", "responses"}, "synthesis", synthesisTemplate),
			},
		},
	}
	return orchestrator.Run(ctx, def, question, agents)
}
