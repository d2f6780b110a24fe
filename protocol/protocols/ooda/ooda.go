// Package ooda implements Boyd's Observe-Orient-Decide-Act loop over two
// cycles, each mechanical phase feeding the next, closing with a
// synthesis of what the second cycle changed — grounded on
// `protocols/p40_boyd_ooda/orchestrator.py` in the original source.
package ooda

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
const Key = "ooda"

const observeTemplate = "Observe the current situation relevant to: {question}\n\nList only facts, no judgments."
const orientTemplate = "Given these observations:\n{input}\n\nFor: {question}\n\n" +
	"Orient: what mental models or assumptions does this challenge?"
const decideTemplate = "Given this orientation:\n{input}\n\nDecide on the single best course of action for: {question}"
const actTemplate = "Given this decision:\n{input}\n\nFor: {question}\n\nDescribe the concrete first action to take, " +
	"and what new observation would tell us whether it worked."

const cycle2ObserveTemplate = "Prior cycle's action:\n{input}\n\nFor: {question}\n\nObserve what changed."

const synthesisTemplate = "Summarize this two-cycle OODA loop.\n\nQUESTION:\n{question}\n\n" +
	"CYCLE 1 — observe:{observe1} orient:{orient1} decide:{decide1} act:{act1}\n\n" +
	"CYCLE 2 — observe:{observe2} orient:{orient2} decide:{decide2} act:{act2}\n\n" +
	"State what the second cycle corrected or confirmed."

func init() {
	protocol.Register(Key, Run)
}

// Run executes two OODA cycles, each phase mechanical (no agent
// identity — the loop itself is the point, not whose voice runs it),
// then synthesizes what changed between cycles.
func Run(ctx context.Context, cfg stage.Config, question string, agents []agentmodel.Agent) (*blackboard.Blackboard, error) {
	def := orchestrator.Definition{
		ProtocolID: Key,
		Stages: []orchestrator.Stage{
			{Name: "observe1", Trigger: trigger.Always(), Execute: stage.MechanicalStage(cfg, "question", "observe1", observeTemplate, nil)},
			{Name: "orient1", Trigger: trigger.After("observe1"), Execute: stage.MechanicalStage(cfg, "observe1", "orient1", orientTemplate, nil)},
			{Name: "decide1", Trigger: trigger.After("orient1"), Execute: stage.MechanicalStage(cfg, "orient1", "decide1", decideTemplate, nil)},
			{Name: "act1", Trigger: trigger.After("decide1"), Execute: stage.MechanicalStage(cfg, "decide1", "act1", actTemplate, nil)},

			{Name: "observe2", Trigger: trigger.After("act1"), Execute: stage.MechanicalStage(cfg, "act1", "observe2", cycle2ObserveTemplate, nil)},
			{Name: "orient2", Trigger: trigger.After("observe2"), Execute: stage.MechanicalStage(cfg, "observe2", "orient2", orientTemplate, nil)},
			{Name: "decide2", Trigger: trigger.After("orient2"), Execute: stage.MechanicalStage(cfg, "orient2", "decide2", decideTemplate, nil)},
			{Name: "act2", Trigger: trigger.After("decide2"), Execute: stage.MechanicalStage(cfg, "decide2", "act2", actTemplate, nil)},

			{
				Name:    "synthesize",
				Trigger: trigger.After("act2"),
				Execute: stage.SynthesisStage(cfg, []string{"observe1", "orient1", "decide1", "act1", "observe2", "orient2", "decide2", "act2"}, "synthesis", synthesisTemplate),
			},
		},
	}
	return orchestrator.Run(ctx, def, question, agents)
}
