// Package causalloop implements causal-loop mapping: extract variables,
// identify causal links between them, trace closed feedback loops by
// depth-bounded DFS, then propose leverage points — grounded on
// `protocols/p24_causal_loop_mapping/orchestrator.py` in the original
// source.
package causalloop

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/blackboard"
	"github.com/agoraflow/agora/llmgateway"
	"github.com/agoraflow/agora/protocol"
	"github.com/agoraflow/agora/stage"
)

// Key is this protocol's registry key.
const Key = "causal_loop_mapping"

// maxCycleDepth bounds the DFS that traces feedback loops, matching the
// original source's len(path) < 8 guard against pathological graphs.
const maxCycleDepth = 8

// Link is one causal edge: From drives To with the given polarity, "+"
// (same direction) or "-" (opposite direction).
type Link struct {
	From, To string
	Polarity string
}

// Loop is one closed feedback cycle discovered in the causal graph.
type Loop struct {
	ID         string
	Type       string // "reinforcing" or "balancing"
	Path       []string
	Polarities []string
}

func init() {
	protocol.Register(Key, Run)
}

// Run extracts variables and links via agent fan-out, traces feedback
// loops with pure graph computation, then synthesizes leverage points.
func Run(ctx context.Context, cfg stage.Config, question string, agents []agentmodel.Agent) (*blackboard.Blackboard, error) {
	bb := blackboard.New(Key, nil)
	bb.Write("question", question, "system", "init", nil)

	variables, err := extractVariables(ctx, cfg, bb, question, agents)
	if err != nil {
		return bb, err
	}
	bb.Write("variables", strings.Join(variables, ", "), "system", "extract_variables", nil)

	links, err := identifyLinks(ctx, cfg, bb, question, agents, variables)
	if err != nil {
		return bb, err
	}
	links = mergeLinks(links)

	reinforcing, balancing := traceLoops(links, variables)
	bb.Write("reinforcing_loops", renderLoops(reinforcing), "system", "trace_loops", nil)
	bb.Write("balancing_loops", renderLoops(balancing), "system", "trace_loops", nil)

	prompt := fmt.Sprintf(
		"You are analyzing a causal-loop diagram.\n\nQUESTION:\n%s\n\nVARIABLES:\n%s\n\n"+
			"REINFORCING LOOPS:\n%s\n\nBALANCING LOOPS:\n%s\n\n"+
			"Identify the highest-leverage intervention points and explain why each loop matters.",
		question, strings.Join(variables, ", "), renderLoops(reinforcing), renderLoops(balancing),
	)
	resp, err := cfg.Gateway.Run(ctx, "system", llmgateway.Request{
		Messages:             []llmgateway.Message{{Role: "user", Content: prompt}},
		ThinkingBudgetTokens: cfg.ThinkingBudget,
	})
	if err != nil {
		return bb, fmt.Errorf("causalloop: leverage analysis: %w", err)
	}
	bb.Write("synthesis", resp.Text, "system", "synthesis", map[string]any{
		"token_usage": map[string]int{"input_tokens": resp.InputTokens, "output_tokens": resp.OutputTokens},
	})

	return bb, nil
}

func extractVariables(ctx context.Context, cfg stage.Config, bb *blackboard.Blackboard, question string, agents []agentmodel.Agent) ([]string, error) {
	g, gctx := errgroup.WithContext(ctx)
	batches := make([][]string, len(agents))

	for i, agent := range agents {
		i, agent := i, agent
		g.Go(func() error {
			prompt := fmt.Sprintf(
				"As %s, name 3-5 key variables at play in: %s\nOne variable name per line.",
				agent.Name, question,
			)
			resp, err := cfg.Gateway.Run(gctx, agent.Name, llmgateway.Request{
				SystemPrompt: agent.SystemPrompt,
				Messages:     []llmgateway.Message{{Role: "user", Content: prompt}},
			})
			if err != nil {
				return fmt.Errorf("variables: %s: %w", agent.Name, err)
			}
			bb.Write("raw_variables", resp.Text, agent.Name, "extract_variables", nil)
			batches[i] = splitLines(resp.Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []string
	for _, batch := range batches {
		for _, v := range batch {
			key := strings.ToLower(v)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, v)
		}
	}
	return out, nil
}

func identifyLinks(ctx context.Context, cfg stage.Config, bb *blackboard.Blackboard, question string, agents []agentmodel.Agent, variables []string) ([]Link, error) {
	varsBlock := strings.Join(variables, ", ")

	g, gctx := errgroup.WithContext(ctx)
	batches := make([][]Link, len(agents))

	for i, agent := range agents {
		i, agent := i, agent
		g.Go(func() error {
			prompt := fmt.Sprintf(
				"As %s, describe causal links between these variables for: %s\n\nVARIABLES: %s\n\n"+
					"One link per line, formatted as `<from> -> <to> : + ` or `<from> -> <to> : -` "+
					"(+ means they move together, - means they move opposite).",
				agent.Name, question, varsBlock,
			)
			resp, err := cfg.Gateway.Run(gctx, agent.Name, llmgateway.Request{
				SystemPrompt: agent.SystemPrompt,
				Messages:     []llmgateway.Message{{Role: "user", Content: prompt}},
			})
			if err != nil {
				return fmt.Errorf("links: %s: %w", agent.Name, err)
			}
			bb.Write("raw_links", resp.Text, agent.Name, "identify_links", nil)
			batches[i] = parseLinks(resp.Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Link
	for _, b := range batches {
		out = append(out, b...)
	}
	return out, nil
}

// mergeLinks dedupes links reported by multiple agents for the same
// (from, to) pair, resolving conflicting polarity by majority vote —
// the same merge the original source's _merge_links performs before
// loop tracing, so two agents disagreeing on a link's sign collapse to
// one edge instead of two.
func mergeLinks(links []Link) []Link {
	type key struct{ from, to string }
	order := make([]key, 0, len(links))
	votes := make(map[key][]string)
	for _, l := range links {
		k := key{l.From, l.To}
		if _, ok := votes[k]; !ok {
			order = append(order, k)
		}
		votes[k] = append(votes[k], l.Polarity)
	}

	merged := make([]Link, 0, len(order))
	for _, k := range order {
		merged = append(merged, Link{From: k.from, To: k.to, Polarity: majorityPolarity(votes[k])})
	}
	return merged
}

// majorityPolarity picks the most-voted polarity, breaking ties toward "+".
func majorityPolarity(polarities []string) string {
	counts := make(map[string]int, 2)
	for _, p := range polarities {
		counts[p]++
	}
	best, bestCount := "+", -1
	for _, p := range []string{"+", "-"} {
		if counts[p] > bestCount {
			best, bestCount = p, counts[p]
		}
	}
	return best
}

// traceLoops finds closed cycles in the causal graph via bounded-depth
// DFS, canonicalizing each cycle's edge set so the same loop discovered
// from different starting nodes is only counted once. A loop is
// reinforcing if it contains an even number of "-" links (the sign
// compounds), balancing if odd (the sign self-corrects).
func traceLoops(links []Link, variables []string) (reinforcing, balancing []Loop) {
	adj := make(map[string][]Link)
	for _, l := range links {
		adj[l.From] = append(adj[l.From], l)
	}

	type cycle struct {
		path       []string
		polarities []string
	}
	var found []cycle
	seen := make(map[string]struct{})

	var dfs func(start, current string, path, polarities []string, visited map[string]struct{})
	dfs = func(start, current string, path, polarities []string, visited map[string]struct{}) {
		for _, edge := range adj[current] {
			if edge.To == start && len(path) >= 2 {
				key := canonicalizeCycle(append(append([]string(nil), path...), current), start)
				if _, ok := seen[key]; !ok {
					seen[key] = struct{}{}
					found = append(found, cycle{
						path:       append(append([]string(nil), path...), current),
						polarities: append(append([]string(nil), polarities...), edge.Polarity),
					})
				}
				continue
			}
			if _, visitedAlready := visited[edge.To]; !visitedAlready && len(path) < maxCycleDepth {
				visited[edge.To] = struct{}{}
				dfs(start, edge.To, append(path, current), append(polarities, edge.Polarity), visited)
				delete(visited, edge.To)
			}
		}
	}

	for _, v := range variables {
		dfs(v, v, nil, nil, map[string]struct{}{v: {}})
	}

	rIdx, bIdx := 1, 1
	for _, c := range found {
		negCount := 0
		for _, p := range c.polarities {
			if p == "-" {
				negCount++
			}
		}
		if negCount%2 == 0 {
			reinforcing = append(reinforcing, Loop{ID: fmt.Sprintf("R%d", rIdx), Type: "reinforcing", Path: c.path, Polarities: c.polarities})
			rIdx++
		} else {
			balancing = append(balancing, Loop{ID: fmt.Sprintf("B%d", bIdx), Type: "balancing", Path: c.path, Polarities: c.polarities})
			bIdx++
		}
	}
	return reinforcing, balancing
}

func canonicalizeCycle(path []string, closingNode string) string {
	edges := make([]string, 0, len(path))
	for i := 0; i < len(path); i++ {
		to := closingNode
		if i+1 < len(path) {
			to = path[i+1]
		}
		edges = append(edges, path[i]+"->"+to)
	}
	sort.Strings(edges)
	return strings.Join(edges, ",")
}

func renderLoops(loops []Loop) string {
	if len(loops) == 0 {
		return "None found"
	}
	var b strings.Builder
	for _, l := range loops {
		fmt.Fprintf(&b, "- %s (%s): %s\n", l.ID, l.Type, strings.Join(l.Path, " -> "))
	}
	return b.String()
}

func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func parseLinks(text string) []Link {
	var out []Link
	for _, line := range splitLines(text) {
		arrow := strings.Index(line, "->")
		colon := strings.LastIndex(line, ":")
		if arrow == -1 || colon == -1 || colon < arrow {
			continue
		}
		from := strings.TrimSpace(line[:arrow])
		to := strings.TrimSpace(line[arrow+2 : colon])
		polarity := strings.TrimSpace(line[colon+1:])
		if polarity != "+" && polarity != "-" {
			polarity = "+"
		}
		if from == "" || to == "" {
			continue
		}
		out = append(out, Link{From: from, To: to, Polarity: polarity})
	}
	return out
}
