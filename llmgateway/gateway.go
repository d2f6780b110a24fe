package llmgateway

import (
	"context"
	"fmt"

	"github.com/agoraflow/agora/event"
	"github.com/agoraflow/agora/metrics"
)

// maxToolIterations bounds the agentic tool-use loop (spec.md §4.7 step 3).
// A misbehaving model that never stops requesting tools terminates the
// turn instead of looping forever.
const maxToolIterations = 15

// Router picks between the primary and generic providers per call and
// drives the shared tool-use loop on top of whichever is selected.
type Router struct {
	Primary Gateway
	Generic Gateway
	Tools   ToolRunner
}

// NewRouter builds a Router over the two provider paths.
func NewRouter(primary, generic Gateway, tools ToolRunner) *Router {
	return &Router{Primary: primary, Generic: generic, Tools: tools}
}

func (r *Router) pick(req Request) Gateway {
	if req.ModelID != nil && *req.ModelID != "" && r.Generic != nil {
		return r.Generic
	}
	return r.Primary
}

// Run drives req through the selected provider, resolving any tool calls
// the model issues via r.Tools and feeding results back until the model
// stops requesting tools or maxToolIterations is hit. A request with no
// tool specs, a ctx marked by WithNoTools, or a Router with no Tools
// runner never enters the loop.
// Events are emitted on ctx's attached sink, if any (spec.md §4.10).
func (r *Router) Run(ctx context.Context, agentName string, req Request) (Response, error) {
	gw := r.pick(req)
	if gw == nil {
		return Response{}, fmt.Errorf("llmgateway: no provider configured for this request")
	}

	conversation := append([]Message(nil), req.Messages...)
	var totalIn, totalOut int

	for iteration := 1; iteration <= maxToolIterations; iteration++ {
		turn := req
		turn.Messages = conversation

		resp, err := gw.Complete(ctx, turn)
		if err != nil {
			return Response{}, err
		}
		totalIn += resp.InputTokens
		totalOut += resp.OutputTokens

		if len(resp.ToolCalls) == 0 || len(req.Tools) == 0 || noTools(ctx) || r.Tools == nil {
			resp.InputTokens, resp.OutputTokens = totalIn, totalOut
			metrics.ToolLoopIterations.Observe(float64(iteration))
			return resp, nil
		}

		conversation = append(conversation, Message{Role: "assistant", Content: resp.Text, ToolCalls: resp.ToolCalls})

		var results []ToolResult
		for _, call := range resp.ToolCalls {
			Emit(ctx, event.Event{
				Kind:  event.KindToolCall,
				RunID: RunID(ctx),
				Payload: event.ToolCallPayload{
					AgentName: agentName,
					ToolName:  call.Name,
					Input:     fmt.Sprint(call.Input),
					Iteration: iteration,
				},
			})

			result := r.Tools(ctx, call)
			results = append(results, result)

			preview := result.Content
			if len(preview) > 200 {
				preview = preview[:200]
			}
			Emit(ctx, event.Event{
				Kind:  event.KindToolResult,
				RunID: RunID(ctx),
				Payload: event.ToolResultPayload{
					AgentName: agentName,
					ToolName:  call.Name,
					Preview:   preview,
					Iteration: iteration,
				},
			})
		}
		conversation = append(conversation, Message{Role: "user", ToolResults: results})

		if iteration == maxToolIterations {
			resp.InputTokens, resp.OutputTokens = totalIn, totalOut
			metrics.ToolLoopIterations.Observe(float64(iteration))
			return resp, nil
		}
	}

	return Response{}, fmt.Errorf("llmgateway: tool loop exceeded %d iterations", maxToolIterations)
}
