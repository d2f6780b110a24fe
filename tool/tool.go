// Package tool is the name-keyed registry stage executors and the LLM
// gateway's tool-use loop dispatch into, grounded on `api/tool_executor.py`
// in the original source.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agoraflow/agora/llmgateway"
)

// maxResultLength caps a tool's serialized output before it's fed back to
// the model, mirroring MAX_RESULT_LENGTH in the original source.
const maxResultLength = 50_000

// Handler executes one tool call. It may return an error; the registry
// converts that into a never-raising JSON error object before it reaches
// the model.
type Handler func(ctx context.Context, input map[string]any) (string, error)

// Spec pairs a Handler with the metadata the LLM gateway needs to offer it
// to a model.
type Spec struct {
	Name        string
	Description string
	Schema      map[string]any
	Handler     Handler
}

// Registry is a name-keyed lookup of available tools.
type Registry struct {
	specs map[string]Spec
}

// NewRegistry builds a Registry from a fixed set of specs.
func NewRegistry(specs ...Spec) *Registry {
	r := &Registry{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		r.specs[s.Name] = s
	}
	return r
}

// Specs returns every registered tool in gateway-facing form, for agents
// whose Tools list names them.
func (r *Registry) Specs(names []string) []llmgateway.ToolSpec {
	out := make([]llmgateway.ToolSpec, 0, len(names))
	for _, name := range names {
		if s, ok := r.specs[name]; ok {
			out = append(out, llmgateway.ToolSpec{
				Name:        s.Name,
				Description: s.Description,
				Schema:      s.Schema,
			})
		}
	}
	return out
}

// Run executes call.Name and returns its result as a llmgateway.ToolResult.
// Run never panics or propagates an error to the caller — unknown tools
// and handler failures both become an {"error": "..."} JSON payload with
// IsError set, matching execute_tool's never-raise contract.
func (r *Registry) Run(ctx context.Context, call llmgateway.ToolCall) llmgateway.ToolResult {
	spec, ok := r.specs[call.Name]
	if !ok {
		return errorResult(call.ID, fmt.Sprintf("Unknown tool: %s", call.Name))
	}

	result, err := runHandler(ctx, spec.Handler, call.Input)
	if err != nil {
		msg := err.Error()
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return errorResult(call.ID, fmt.Sprintf("Tool '%s' failed: %s", call.Name, msg))
	}
	return llmgateway.ToolResult{
		ToolCallID: call.ID,
		Content:    sanitize(result),
	}
}

// runHandler isolates a panicking handler into an error, since third-party
// tool implementations are not trusted to be panic-free.
func runHandler(ctx context.Context, h Handler, input map[string]any) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, input)
}

func errorResult(callID, message string) llmgateway.ToolResult {
	payload, _ := json.Marshal(map[string]string{"error": message})
	return llmgateway.ToolResult{ToolCallID: callID, Content: string(payload), IsError: true}
}

// sanitize truncates an oversized tool result so a runaway tool can't blow
// the model's context window.
func sanitize(s string) string {
	if len(s) <= maxResultLength {
		return s
	}
	return s[:maxResultLength] + fmt.Sprintf("\n...[truncated, %d bytes omitted]", len(s)-maxResultLength)
}

// Elapsed returns the milliseconds since start, at microsecond precision,
// in the unit of the tool_result event's elapsed_ms field.
func Elapsed(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
