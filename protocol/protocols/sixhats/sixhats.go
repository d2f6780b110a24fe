// Package sixhats implements de Bono's Six Thinking Hats: a blue-hat
// framing pass, five parallel hat stages (white/red/yellow/black/green),
// each with a distinct cognitive framing, closed by a blue-hat synthesis
// — grounded on `protocols/p28_six_hats/orchestrator.py` in the original
// source.
package sixhats

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
const Key = "six_hats"

const frameTemplate = "You are wearing the blue hat, facilitating a Six Thinking Hats session on: {question}\n\n" +
	"Frame the process: what does this session need to resolve? Keep it to two sentences."

const whiteTemplate = "White hat: state only the facts and data relevant to: {question}\n\nFraming:\n{frame}\n\nNo opinions, no interpretation."
const redTemplate = "Red hat: state your gut feelings and intuitions about: {question}\n\nFraming:\n{frame}\n\nNo justification required."
const yellowTemplate = "Yellow hat: identify the genuine benefits and best-case value in: {question}\n\nFraming:\n{frame}"
const blackTemplate = "Black hat: identify the real risks, flaws, and reasons this could fail: {question}\n\nFraming:\n{frame}"
const greenTemplate = "Green hat: propose creative alternatives or modifications to: {question}\n\nFraming:\n{frame}"

const synthesisTemplate = "You are wearing the blue hat again, closing the session.\n\nQUESTION:\n{question}\n\n" +
	"WHITE (facts):\n{white}\n\nRED (feelings):\n{red}\n\nYELLOW (benefits):\n{yellow}\n\n" +
	"BLACK (risks):\n{black}\n\nGREEN (alternatives):\n{green}\n\n" +
	"Synthesize a final recommendation that integrates all six perspectives."

func init() {
	protocol.Register(Key, Run)
}

// Run executes the blue-hat frame, the five hat stages in parallel off
// that frame, and a closing blue-hat synthesis.
func Run(ctx context.Context, cfg stage.Config, question string, agents []agentmodel.Agent) (*blackboard.Blackboard, error) {
	def := orchestrator.Definition{
		ProtocolID: Key,
		Stages: []orchestrator.Stage{
			{
				Name:    "frame",
				Trigger: trigger.Always(),
				Execute: stage.MechanicalStage(cfg, "question", "frame", frameTemplate, nil),
			},
			{
				Name:    "white",
				Trigger: trigger.After("frame"),
				Execute: stage.RoundStage(cfg, []string{"frame"}, "white", whiteTemplate, false),
			},
			{
				Name:    "red",
				Trigger: trigger.After("frame"),
				Execute: stage.RoundStage(cfg, []string{"frame"}, "red", redTemplate, false),
			},
			{
				Name:    "yellow",
				Trigger: trigger.After("frame"),
				Execute: stage.RoundStage(cfg, []string{"frame"}, "yellow", yellowTemplate, false),
			},
			{
				Name:    "black",
				Trigger: trigger.After("frame"),
				Execute: stage.RoundStage(cfg, []string{"frame"}, "black", blackTemplate, true),
			},
			{
				Name:    "green",
				Trigger: trigger.After("frame"),
				Execute: stage.RoundStage(cfg, []string{"frame"}, "green", greenTemplate, true),
			},
			{
				Name:    "synthesize",
				Trigger: trigger.AfterAll("white", "red", "yellow", "black", "green"),
				Execute: stage.SynthesisStage(cfg, []string{"white", "red", "yellow", "black", "green"}, "synthesis", synthesisTemplate),
			},
		},
	}
	return orchestrator.Run(ctx, def, question, agents)
}
