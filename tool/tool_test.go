package tool_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agoraflow/agora/llmgateway"
	"github.com/agoraflow/agora/tool"
)

func TestRunUnknownToolReturnsErrorResult(t *testing.T) {
	r := tool.NewRegistry(tool.BuiltinSpecs()...)
	result := r.Run(context.Background(), llmgateway.ToolCall{ID: "1", Name: "nope"})
	require.True(t, result.IsError)
	require.Contains(t, result.Content, "Unknown tool")
}

func TestRunCalculatorSucceeds(t *testing.T) {
	r := tool.NewRegistry(tool.BuiltinSpecs()...)
	result := r.Run(context.Background(), llmgateway.ToolCall{
		ID:   "1",
		Name: "calculator",
		Input: map[string]any{
			"operation": "multiply",
			"a":         3.0,
			"b":         4.0,
		},
	})
	require.False(t, result.IsError)
	require.Contains(t, result.Content, "12")
}

func TestRunCalculatorDivideByZeroIsWrappedNotPanicked(t *testing.T) {
	r := tool.NewRegistry(tool.BuiltinSpecs()...)
	result := r.Run(context.Background(), llmgateway.ToolCall{
		ID:   "1",
		Name: "calculator",
		Input: map[string]any{
			"operation": "divide",
			"a":         1.0,
			"b":         0.0,
		},
	})
	require.True(t, result.IsError)
}

func TestSpecsFiltersToRequestedNames(t *testing.T) {
	r := tool.NewRegistry(tool.BuiltinSpecs()...)
	specs := r.Specs([]string{"calculator", "unknown"})
	require.Len(t, specs, 1)
	require.Equal(t, "calculator", specs[0].Name)
}
