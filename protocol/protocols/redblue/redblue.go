// Package redblue implements Red/Blue/White team review: the red team
// attacks a plan, the blue team defends it, a white-team adjudication
// pass scores each exchange, and a final assessment synthesizes the
// outcome — grounded on `protocols/p17_red_blue_white/orchestrator.py`
// in the original source.
package redblue

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
const Key = "red_blue_white"

const attackTemplate = "You are on the red team. Attack this plan as hard as you credibly can: {question}\n\n" +
	"Name concrete failure modes, not vague risk categories."

const defenseTemplate = "You are on the blue team defending this plan: {question}\n\n" +
	"RED TEAM ATTACKS:\n{red}\n\nRebut each attack or concede and propose a mitigation."

const adjudicateTemplate = "You are the white team adjudicating a red/blue exchange on: {input}\n\n" +
	"For each attack, state whether the defense neutralized it, weakened it, or left it standing."

const finalTemplate = "Render a final assessment of this plan's robustness based on the exchange below.\n\n" +
	"QUESTION:\n{question}\n\nATTACKS:\n{red}\n\nDEFENSES:\n{blue}\n\nADJUDICATION:\n{adjudication}"

func init() {
	protocol.Register(Key, Run)
}

// Run executes attack, defense, adjudication, then a final assessment.
// Agents tagged "red" attack, agents tagged "blue" defend; an untagged
// roster falls back to every agent playing both roles.
func Run(ctx context.Context, cfg stage.Config, question string, agents []agentmodel.Agent) (*blackboard.Blackboard, error) {
	def := orchestrator.Definition{
		ProtocolID: Key,
		Stages: []orchestrator.Stage{
			{
				Name:         "red_attack",
				Trigger:      trigger.Always(),
				AgentsFilter: "@red",
				Execute:      stage.ParallelAgentStage(cfg, "question", "red", attackTemplate, true),
			},
			{
				Name:         "blue_defense",
				Trigger:      trigger.After("red"),
				AgentsFilter: "@blue",
				Execute:      stage.RoundStage(cfg, []string{"red"}, "blue", defenseTemplate, true),
			},
			{
				Name:    "adjudicate",
				Trigger: trigger.AfterAll("red", "blue"),
				Execute: stage.MechanicalStage(cfg, "blue", "adjudication", adjudicateTemplate, nil),
			},
			{
				Name:    "final_assessment",
				Trigger: trigger.After("adjudication"),
				Execute: stage.SynthesisStage(cfg, []string{"red", "blue", "adjudication"}, "synthesis", finalTemplate),
			},
		},
	}
	if !hasTag(agents, "red") || !hasTag(agents, "blue") {
		def.Stages[0].AgentsFilter = ""
		def.Stages[1].AgentsFilter = ""
	}
	return orchestrator.Run(ctx, def, question, agents)
}

func hasTag(agents []agentmodel.Agent, category string) bool {
	for _, a := range agents {
		if a.InCategory(category) {
			return true
		}
	}
	return false
}
