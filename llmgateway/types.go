// Package llmgateway is the single call site through which every stage
// executor reaches a model, per spec.md §4.7. It dispatches to one of two
// paths depending on whether the calling agent carries a ModelID override,
// and drives the agentic tool-use loop shared by both.
package llmgateway

import "context"

// Message is a provider-agnostic turn in a conversation. Role is one of
// "user" or "assistant"; ToolCalls/ToolResults carry structured turns for
// the agentic loop.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall is a model-issued tool invocation request.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult is the outcome of executing a ToolCall, fed back to the model.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// ToolSpec describes one callable tool in provider-agnostic form.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Request is one gateway call: a system prompt, a conversation, and
// optionally tools the model may invoke.
type Request struct {
	SystemPrompt         string
	Messages             []Message
	Tools                []ToolSpec
	ModelID              *string
	MaxOutputTokens      *int
	Temperature          *float64
	ThinkingBudgetTokens int
}

// Response is one model turn's output.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Gateway dispatches a single-turn completion request to a provider.
type Gateway interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ToolRunner executes one tool call and returns its textual result. It
// never raises — execution failures are encoded into the returned string
// per spec.md §4.8.
type ToolRunner func(ctx context.Context, call ToolCall) ToolResult
