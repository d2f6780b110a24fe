// Package protocolresult extracts a uniform result view out of a
// completed protocol's blackboard. The original source discovers a
// result shape by probing dataclass attributes (`.perspectives`,
// `.rounds`, `.stages`, `.agent_outputs` — see `api/runner.py`'s
// `_extract_outputs`/`_extract_synthesis`), one hasattr chain per
// possible protocol result type. Every protocol here writes through the
// same blackboard shape instead, so one extractor replaces the whole
// chain: the synthesis topic (if any) plus every non-system entry as an
// agent output, per spec.md §9's heterogeneous-result-records design
// note.
package protocolresult

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agoraflow/agora/blackboard"
)

// AgentOutput is one agent's contribution, independent of which
// protocol or stage produced it.
type AgentOutput struct {
	AgentKey     string
	AgentName    string
	Topic        string
	Round        int
	Text         string
	InputTokens  int
	OutputTokens int
}

// Result is the tagged view every protocol's blackboard reduces to: a
// flat list of agent outputs plus an optional final synthesis.
type Result struct {
	Outputs   []AgentOutput
	Synthesis string
}

// FinalOutput returns the synthesis if one was written, otherwise the
// last agent output's text, otherwise "" — this is what a pipeline step
// carries forward as {prev_output}.
func (r Result) FinalOutput() string {
	if r.Synthesis != "" {
		return r.Synthesis
	}
	if len(r.Outputs) > 0 {
		return r.Outputs[len(r.Outputs)-1].Text
	}
	return ""
}

var roundTopicRe = regexp.MustCompile(`round(\d+)$`)

// Extract walks every entry on the blackboard in write order and splits
// it into the synthesis (latest "synthesis" topic entry, if any) and
// the agent outputs (everything else authored by something other than
// "system"). agentKeys is used for best-effort name-to-key matching,
// mirroring _name_to_key.
func Extract(bb *blackboard.Blackboard, agentKeys []string) Result {
	var result Result

	for _, e := range bb.Snapshot().Entries {
		switch {
		case e.Topic == "synthesis":
			result.Synthesis = stringify(e.Content)
		case e.Topic == "question" || e.Author == "system":
			// skip
		default:
			round := 0
			if m := roundTopicRe.FindStringSubmatch(e.Topic); m != nil {
				round, _ = strconv.Atoi(m[1])
			}
			in, out := e.TokenUsage()
			result.Outputs = append(result.Outputs, AgentOutput{
				AgentKey:     nameToKey(e.Author, agentKeys),
				AgentName:    e.Author,
				Topic:        e.Topic,
				Round:        round,
				Text:         stringify(e.Content),
				InputTokens:  in,
				OutputTokens: out,
			})
		}
	}
	return result
}

func stringify(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	return fmt.Sprint(content)
}

// nameToKey best-effort matches an agent display name back to its
// registry key by substring containment either direction.
func nameToKey(name string, agentKeys []string) string {
	lowered := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	for _, key := range agentKeys {
		if strings.Contains(key, lowered) || strings.Contains(lowered, key) {
			return key
		}
	}
	return lowered
}
