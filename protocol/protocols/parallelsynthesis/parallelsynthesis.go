// Package parallelsynthesis implements the 2-stage "everyone answers
// independently, then synthesize" protocol, grounded on
// `protocols/p03_parallel_synthesis` in the original source.
package parallelsynthesis

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
const Key = "parallel_synthesis"

const synthesisSystemPrompt = `You are a strategic synthesizer. You have received independent perspectives ` +
	`from multiple specialists on the same question. Your job:

1. Identify areas of agreement across perspectives
2. Surface key tensions or trade-offs where perspectives diverge
3. Extract the strongest insights from each perspective
4. Produce a unified recommendation that integrates the best thinking

Structure your synthesis as:
- Consensus: What most or all perspectives agree on
- Key Tensions: Where perspectives meaningfully diverge and why
- Integrated Recommendation: Your synthesized position incorporating all views
- Risk Factors: Important caveats or conditions

Be direct and specific. Reference which perspectives contributed which insights.

ORIGINAL QUESTION:
{question}

INDEPENDENT PERSPECTIVES:
{perspectives}`

func init() {
	protocol.Register(Key, Run)
}

// Run executes the two stages: parallel_query, then synthesize.
func Run(ctx context.Context, cfg stage.Config, question string, agents []agentmodel.Agent) (*blackboard.Blackboard, error) {
	def := orchestrator.Definition{
		ProtocolID: Key,
		Stages: []orchestrator.Stage{
			{
				Name:    "parallel_query",
				Trigger: trigger.Always(),
				Execute: stage.ParallelAgentStage(cfg, "question", "perspectives", "{input}", true),
			},
			{
				Name:    "synthesize",
				Trigger: trigger.After("perspectives"),
				Execute: stage.SynthesisStage(cfg, []string{"perspectives"}, "synthesis", synthesisSystemPrompt),
			},
		},
	}
	return orchestrator.Run(ctx, def, question, agents)
}
