// Package pipeline chains multiple protocol runs, substituting one
// step's synthesis into the next step's question template. Grounded on
// spec.md §4.6 and the step-sequencing loop in the original source's
// `api/runner.py` (`run_pipeline_stream`).
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/blackboard"
	"github.com/agoraflow/agora/event"
	"github.com/agoraflow/agora/protocol"
	"github.com/agoraflow/agora/protocolresult"
	"github.com/agoraflow/agora/stage"
)

// Step is one entry in a pipeline definition.
type Step struct {
	ProtocolKey        string
	QuestionTemplate   string
	ThinkingModel      string
	OrchestrationModel string
	Rounds             int
	OutputPassthrough  bool
}

// Definition is a named, ordered list of steps. The agent roster every
// step runs with is passed to Run separately.
type Definition struct {
	Name  string
	Steps []Step
}

// StepResult captures one completed step for persistence.
type StepResult struct {
	Index       int
	ProtocolKey string
	Question    string
	Blackboard  *blackboard.Blackboard
	Result      protocolresult.Result
	StartedAt   time.Time
	CompletedAt time.Time
	Err         error
}

// Run executes every step in order. Before step i>0, `{prev_output}` in
// the step's question template is substituted with the previous step's
// synthesis (or its last agent output if the protocol wrote no
// synthesis) — the original's FinalOutput() contract. If
// OutputPassthrough is false on a step, prevOutput still carries
// forward unchanged from before that step (spec.md §4.6 only updates
// prevOutput "if output_passthrough is true"). emit, if non-nil, is
// called with each event as the run progresses; a context cancellation
// stops the pipeline before its next step starts and is returned as
// the final step's error.
func Run(ctx context.Context, runID string, def Definition, baseQuestion string, agents []agentmodel.Agent, cfg stage.Config, emit func(event.Event)) ([]StepResult, error) {
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("pipeline: at least one step is required")
	}

	send := func(ev event.Event) {
		if emit != nil {
			ev.RunID = runID
			emit(ev)
		}
	}

	agentKeys := make([]string, len(agents))
	for i, a := range agents {
		agentKeys[i] = agentmodel.KeyFor(a)
	}

	results := make([]StepResult, 0, len(def.Steps))
	prevOutput := baseQuestion

	for i, step := range def.Steps {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("pipeline: cancelled before step %d: %w", i, err)
		}

		runner, ok := protocol.Lookup(step.ProtocolKey)
		if !ok {
			return results, fmt.Errorf("pipeline: unknown protocol key %q at step %d", step.ProtocolKey, i)
		}

		question := stage.Format(step.QuestionTemplate, map[string]string{"prev_output": prevOutput}, "")
		send(event.Event{Kind: event.KindStepStart, Payload: event.StepStartPayload{Step: i, ProtocolKey: step.ProtocolKey}})

		stepCfg := cfg
		if step.ThinkingModel != "" {
			stepCfg.ThinkingModel = step.ThinkingModel
		}
		if step.OrchestrationModel != "" {
			stepCfg.OrchestrationModel = step.OrchestrationModel
		}

		started := time.Now()
		bb, err := runner(ctx, stepCfg, question, agents)
		completed := time.Now()

		stepResult := StepResult{
			Index:       i,
			ProtocolKey: step.ProtocolKey,
			Question:    question,
			Blackboard:  bb,
			StartedAt:   started,
			CompletedAt: completed,
			Err:         err,
		}
		if bb != nil {
			stepResult.Result = protocolresult.Extract(bb, agentKeys)
		}
		results = append(results, stepResult)

		if err != nil {
			return results, fmt.Errorf("pipeline: step %d (%s): %w", i, step.ProtocolKey, err)
		}

		for _, out := range stepResult.Result.Outputs {
			stepIdx := i
			send(event.Event{Kind: event.KindAgentOutput, Payload: event.AgentOutputPayload{
				AgentKey: out.AgentKey, AgentName: out.AgentName, Text: out.Text, Round: out.Round, Step: &stepIdx,
			}})
		}
		if stepResult.Result.Synthesis != "" {
			stepIdx := i
			send(event.Event{Kind: event.KindSynthesis, Payload: event.SynthesisPayload{Text: stepResult.Result.Synthesis, Step: &stepIdx}})
		}
		send(event.Event{Kind: event.KindStepComplete, Payload: event.StepCompletePayload{Step: i, ProtocolKey: step.ProtocolKey}})

		if step.OutputPassthrough {
			if out := stepResult.Result.FinalOutput(); out != "" {
				prevOutput = out
			}
		}
	}

	return results, nil
}
