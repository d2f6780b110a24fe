// Package protocol holds the code-level registry of protocol
// constructors — resolution is a map lookup by key, never reflection or
// directory scanning, per spec.md §9's resolution-strategy REDESIGN FLAG.
package protocol

import (
	"context"
	"fmt"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/blackboard"
	"github.com/agoraflow/agora/stage"
)

// Runner executes one protocol to completion and returns the blackboard
// it ran on, for the run controller's tolerant result extraction.
type Runner func(ctx context.Context, cfg stage.Config, question string, agents []agentmodel.Agent) (*blackboard.Blackboard, error)

var registry = map[string]Runner{}

// Register adds a protocol constructor under key. Called from each
// protocols/<name> subpackage's init().
func Register(key string, run Runner) {
	if _, exists := registry[key]; exists {
		panic(fmt.Sprintf("protocol: duplicate registration for key %q", key))
	}
	registry[key] = run
}

// Lookup resolves a protocol key to its Runner.
func Lookup(key string) (Runner, bool) {
	r, ok := registry[key]
	return r, ok
}

// Keys returns every registered protocol key, for the "protocols list" CLI
// subcommand and API discovery endpoint.
func Keys() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}
