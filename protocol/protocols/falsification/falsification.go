// Package falsification implements the Popper Falsification Gate: a
// quality-gate protocol that actively searches for evidence a
// recommendation is WRONG rather than confirming it, grounded on
// `protocols/p39_popper_falsification/orchestrator.py` in the original
// source. Unlike the declarative protocols, the evidence-search phase
// fans out over a dynamically sized condition list crossed with the
// agent roster, so this is a direct function rather than a fixed stage
// chain.
package falsification

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/blackboard"
	"github.com/agoraflow/agora/llmgateway"
	"github.com/agoraflow/agora/protocol"
	"github.com/agoraflow/agora/stage"
)

// Key is this protocol's registry key.
const Key = "falsification"

// Condition is one falsification condition under test, with each
// agent's independent analysis of whether it held.
type Condition struct {
	Text      string
	Analyses  map[string]string
	Activated bool
	Reasoning string
}

func init() {
	protocol.Register(Key, Run)
}

// Run generates falsification conditions for question treated as the
// recommendation under test, searches for disconfirming evidence
// against each condition across the full agent roster, and renders a
// final verdict.
func Run(ctx context.Context, cfg stage.Config, question string, agents []agentmodel.Agent) (*blackboard.Blackboard, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("falsification: at least one agent is required")
	}

	bb := blackboard.New(Key, nil)
	bb.Write("question", question, "system", "init", nil)

	conditions, err := generateConditions(ctx, cfg, bb, question, agents)
	if err != nil {
		return bb, err
	}
	if len(conditions) == 0 {
		return bb, fmt.Errorf("falsification: no conditions generated")
	}

	if err := searchEvidence(ctx, cfg, bb, question, conditions, agents); err != nil {
		return bb, err
	}

	verdict, reasoning, err := renderVerdict(ctx, cfg, bb, question, conditions)
	if err != nil {
		return bb, err
	}

	bb.Write("synthesis", fmt.Sprintf("VERDICT: %s\n\n%s", verdict, reasoning), "system", "render_verdict", map[string]any{
		"verdict": verdict,
	})
	return bb, nil
}

func generateConditions(ctx context.Context, cfg stage.Config, bb *blackboard.Blackboard, recommendation string, agents []agentmodel.Agent) ([]*Condition, error) {
	prompt := fmt.Sprintf(
		"A recommendation is under review: %s\n\n"+
			"List the specific, checkable conditions that — if found true — would mean this "+
			"recommendation is WRONG. Be concrete, not generic.", recommendation)

	g, gctx := errgroup.WithContext(ctx)
	raw := make([]string, len(agents))
	for i, agent := range agents {
		i, agent := i, agent
		g.Go(func() error {
			resp, err := cfg.Gateway.Run(gctx, agent.Name, llmgateway.Request{
				SystemPrompt: agent.SystemPrompt,
				Messages:     []llmgateway.Message{{Role: "user", Content: prompt}},
			})
			if err != nil {
				return fmt.Errorf("generate_conditions: %s: %w", agent.Name, err)
			}
			raw[i] = resp.Text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var combined strings.Builder
	for i, agent := range agents {
		fmt.Fprintf(&combined, "=== %s ===\n%s\n\n", agent.Name, raw[i])
	}
	bb.Write("raw_conditions", combined.String(), "system", "generate_conditions", nil)

	mergePrompt := "Below are falsification conditions from multiple analysts. Merge duplicates and return " +
		"a JSON array of 3-5 unique condition strings, each a single sentence.\n\n" + combined.String()
	resp, err := cfg.Gateway.Run(ctx, "system", llmgateway.Request{
		Messages: []llmgateway.Message{{Role: "user", Content: mergePrompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("generate_conditions: merge: %w", err)
	}

	texts := parseJSONArray(resp.Text)
	conditions := make([]*Condition, len(texts))
	for i, t := range texts {
		conditions[i] = &Condition{Text: t, Analyses: make(map[string]string)}
	}
	bb.Write("conditions", renderConditions(conditions), "system", "generate_conditions", nil)
	return conditions, nil
}

func searchEvidence(ctx context.Context, cfg stage.Config, bb *blackboard.Blackboard, recommendation string, conditions []*Condition, agents []agentmodel.Agent) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, cond := range conditions {
		cond := cond
		g.Go(func() error {
			prompt := fmt.Sprintf(
				"Recommendation: %s\n\nCondition under test: %s\n\n"+
					"Actively search for evidence that this condition holds (meaning the recommendation is "+
					"wrong). Report what you find, for or against, plainly — do not talk yourself out of "+
					"disconfirming evidence.", recommendation, cond.Text)

			inner, innerCtx := errgroup.WithContext(gctx)
			results := make([]string, len(agents))
			for i, agent := range agents {
				i, agent := i, agent
				inner.Go(func() error {
					resp, err := cfg.Gateway.Run(innerCtx, agent.Name, llmgateway.Request{
						SystemPrompt: agent.SystemPrompt,
						Messages:     []llmgateway.Message{{Role: "user", Content: prompt}},
					})
					if err != nil {
						return fmt.Errorf("search_evidence: %s: %w", agent.Name, err)
					}
					results[i] = resp.Text
					return nil
				})
			}
			if err := inner.Wait(); err != nil {
				return err
			}
			for i, agent := range agents {
				cond.Analyses[agent.Name] = results[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	bb.Write("evidence", renderEvidence(conditions), "system", "search_evidence", nil)
	return nil
}

func renderVerdict(ctx context.Context, cfg stage.Config, bb *blackboard.Blackboard, recommendation string, conditions []*Condition) (verdict, reasoning string, err error) {
	evidence := renderEvidence(conditions)
	prompt := fmt.Sprintf(
		"Recommendation under review: %s\n\nFor each condition below, decide whether the agents' evidence "+
			"ACTIVATES it (meaning the recommendation is falsified) or not, and give one sentence of reasoning. "+
			"Then give an overall verdict of SURVIVES, WEAKENED, or FALSIFIED.\n\n"+
			"Reply as a JSON object: "+
			`{"conditions": [{"condition": "...", "activated": true|false, "reasoning": "..."}], `+
			`"verdict": "SURVIVES|WEAKENED|FALSIFIED", "verdict_reasoning": "..."}`+"\n\nEVIDENCE:\n%s",
		recommendation, evidence)

	resp, runErr := cfg.Gateway.Run(ctx, "system", llmgateway.Request{
		Messages: []llmgateway.Message{{Role: "user", Content: prompt}},
	})
	if runErr != nil {
		return "", "", fmt.Errorf("render_verdict: %w", runErr)
	}

	var data struct {
		Conditions []struct {
			Condition string `json:"condition"`
			Activated bool   `json:"activated"`
			Reasoning string `json:"reasoning"`
		} `json:"conditions"`
		Verdict          string `json:"verdict"`
		VerdictReasoning string `json:"verdict_reasoning"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Text)), &data); err != nil {
		bb.Write("verdict_parse_error", resp.Text, "system", "render_verdict", nil)
		return "UNKNOWN", resp.Text, nil
	}

	byText := make(map[string]*Condition, len(conditions))
	for _, c := range conditions {
		byText[c.Text] = c
	}
	for _, vc := range data.Conditions {
		if c, ok := byText[vc.Condition]; ok {
			c.Activated = vc.Activated
			c.Reasoning = vc.Reasoning
		}
	}

	v := data.Verdict
	if v == "" {
		v = "UNKNOWN"
	}
	return v, data.VerdictReasoning, nil
}

func renderConditions(conditions []*Condition) string {
	var b strings.Builder
	for i, c := range conditions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.Text)
	}
	return b.String()
}

func renderEvidence(conditions []*Condition) string {
	var b strings.Builder
	for _, c := range conditions {
		fmt.Fprintf(&b, "CONDITION: %s\n", c.Text)
		for agent, analysis := range c.Analyses {
			fmt.Fprintf(&b, "  %s: %s\n", agent, analysis)
		}
		b.WriteString("\n")
	}
	return b.String()
}

var jsonArrayRe = regexp.MustCompile(`(?s)\[.*\]`)
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

func parseJSONArray(text string) []string {
	match := jsonArrayRe.FindString(text)
	if match == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(match), &items); err != nil {
		return nil
	}
	return items
}

func extractJSONObject(text string) string {
	if match := jsonObjectRe.FindString(text); match != "" {
		return match
	}
	return "{}"
}
