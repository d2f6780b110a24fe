// Package orchestrator implements the generic pending-stages state
// machine every protocol orchestrator runs on top of, grounded on
// `protocols/orchestrator_loop.py` in the original source. The
// orchestrator never inspects blackboard content itself — it only
// evaluates triggers and dispatches stage executors.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/blackboard"
	"github.com/agoraflow/agora/stage"
	"github.com/agoraflow/agora/trigger"
)

// Stage is one named step of a protocol: a trigger predicate, the
// executor to run once it fires, and an optional agent filter.
type Stage struct {
	Name         string
	Trigger      trigger.Predicate
	Execute      stage.Executor
	AgentsFilter string // "", "@category", or a comma-separated agent-name list
}

// Definition is a protocol's full stage graph.
type Definition struct {
	ProtocolID   string
	Stages       []Stage
	ScopingRules map[string]any
}

// Run drives a fresh blackboard through Definition's stages to
// completion: each pass fires every stage whose trigger currently
// matches, removes fired stages from the pending set, and repeats until
// a pass fires nothing (completion) or the context is canceled.
func Run(ctx context.Context, def Definition, question string, agents []agentmodel.Agent) (*blackboard.Blackboard, error) {
	bb := blackboard.New(def.ProtocolID, def.ScopingRules)
	bb.Write("question", question, "system", "init", nil)

	pending := append([]Stage(nil), def.Stages...)

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return bb, fmt.Errorf("orchestrator: %s: %w", def.ProtocolID, err)
		}

		var fired []int
		for i, s := range pending {
			if !s.Trigger(bb) {
				continue
			}
			scoped := filterAgents(agents, s.AgentsFilter)
			if err := s.Execute(ctx, bb, scoped); err != nil {
				return bb, fmt.Errorf("orchestrator: %s: stage %q: %w", def.ProtocolID, s.Name, err)
			}
			fired = append(fired, i)
		}
		if len(fired) == 0 {
			break
		}
		pending = removeIndices(pending, fired)
	}

	return bb, nil
}

func filterAgents(agents []agentmodel.Agent, filterSpec string) []agentmodel.Agent {
	if filterSpec == "" {
		return agents
	}
	if strings.HasPrefix(filterSpec, "@") {
		category := filterSpec[1:]
		var out []agentmodel.Agent
		for _, a := range agents {
			if a.InCategory(category) {
				out = append(out, a)
			}
		}
		return out
	}

	names := make(map[string]struct{})
	for _, n := range strings.Split(filterSpec, ",") {
		names[strings.TrimSpace(n)] = struct{}{}
	}
	var out []agentmodel.Agent
	for _, a := range agents {
		if _, ok := names[a.Name]; ok {
			out = append(out, a)
		}
	}
	return out
}

func removeIndices(stages []Stage, fired []int) []Stage {
	firedSet := make(map[int]struct{}, len(fired))
	for _, i := range fired {
		firedSet[i] = struct{}{}
	}
	out := make([]Stage, 0, len(stages)-len(fired))
	for i, s := range stages {
		if _, ok := firedSet[i]; !ok {
			out = append(out, s)
		}
	}
	return out
}
