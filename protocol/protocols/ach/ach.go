// Package ach implements Analysis of Competing Hypotheses: generate
// hypotheses, list evidence, score every evidence×hypothesis cell,
// eliminate the least-supported hypotheses, then synthesize — grounded
// on `protocols/p16_ach/orchestrator.py` in the original source.
package ach

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/blackboard"
	"github.com/agoraflow/agora/llmgateway"
	"github.com/agoraflow/agora/protocol"
	"github.com/agoraflow/agora/stage"
)

// Key is this protocol's registry key.
const Key = "ach"

// matrixConcurrency bounds simultaneous evidence×agent scoring calls,
// mirroring the orchestrator's asyncio.Semaphore(4) (widened slightly per
// the documented 8-in-flight cap for this protocol's matrix phase).
const matrixConcurrency = 8

// Hypothesis is one candidate explanation under evaluation.
type Hypothesis struct {
	ID                 string
	Label              string
	Description        string
	InconsistencyCount int
	Eliminated         bool
}

// Evidence is one observation scored against every hypothesis.
type Evidence struct {
	ID              string
	Description     string
	DiagnosticScore float64
}

// MatrixCell is one evidence×hypothesis score: "C" (consistent), "I"
// (inconsistent), or "N" (not applicable).
type MatrixCell struct {
	EvidenceID   string
	HypothesisID string
	Score        string
}

func init() {
	protocol.Register(Key, Run)
}

// Run executes the five ACH phases directly against the blackboard; the
// matrix-scoring phase's evidence×agent fan-out doesn't fit the
// single-trigger stage shape the other protocols use, so it's driven by
// hand here the same way the orchestrator loop drives any other stage —
// each phase writes its results to the blackboard before the next starts.
func Run(ctx context.Context, cfg stage.Config, question string, agents []agentmodel.Agent) (*blackboard.Blackboard, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("ach: at least one agent is required")
	}

	bb := blackboard.New(Key, nil)
	bb.Write("question", question, "system", "init", nil)

	hypotheses, err := generateHypotheses(ctx, cfg, bb, question, agents)
	if err != nil {
		return bb, err
	}
	if len(hypotheses) == 0 {
		return bb, fmt.Errorf("ach: no hypotheses generated")
	}

	evidence, err := listEvidence(ctx, cfg, bb, question, agents, hypotheses)
	if err != nil {
		return bb, err
	}

	matrix, err := buildMatrix(ctx, cfg, bb, question, agents, hypotheses, evidence)
	if err != nil {
		return bb, err
	}

	eliminated, surviving := eliminate(hypotheses, matrix)
	bb.Write("eliminated", renderHypotheses(eliminated), "system", "eliminate", nil)
	bb.Write("surviving", renderHypotheses(surviving), "system", "eliminate", nil)

	diagnostic := computeDiagnosticity(evidence, matrix, hypotheses)

	prompt := fmt.Sprintf(
		"You are closing out an Analysis of Competing Hypotheses exercise.\n\n"+
			"QUESTION:\n%s\n\nSURVIVING HYPOTHESES:\n%s\n\nELIMINATED HYPOTHESES:\n%s\n\n"+
			"MOST DIAGNOSTIC EVIDENCE:\n%s\n\n"+
			"Write a sensitivity-analysis synthesis: which surviving hypothesis is best supported, "+
			"what evidence would most change the conclusion, and what residual uncertainty remains.",
		question, renderHypotheses(surviving), renderHypotheses(eliminated), renderDiagnostic(diagnostic),
	)
	req := llmgateway.Request{
		Messages:             []llmgateway.Message{{Role: "user", Content: prompt}},
		ThinkingBudgetTokens: cfg.ThinkingBudget,
	}
	resp, err := cfg.Gateway.Run(ctx, "system", req)
	if err != nil {
		return bb, fmt.Errorf("ach: synthesis: %w", err)
	}
	bb.Write("synthesis", resp.Text, "system", "synthesis", map[string]any{
		"token_usage": map[string]int{"input_tokens": resp.InputTokens, "output_tokens": resp.OutputTokens},
	})

	return bb, nil
}

func generateHypotheses(ctx context.Context, cfg stage.Config, bb *blackboard.Blackboard, question string, agents []agentmodel.Agent) ([]Hypothesis, error) {
	g, gctx := errgroup.WithContext(ctx)
	labels := make([][]string, len(agents))

	for i, agent := range agents {
		i, agent := i, agent
		g.Go(func() error {
			prompt := fmt.Sprintf(
				"As %s, propose 2-3 distinct hypotheses that could explain: %s\n"+
					"Reply with one hypothesis per line, formatted as `label: description`.",
				agent.Name, question,
			)
			resp, err := cfg.Gateway.Run(gctx, agent.Name, llmgateway.Request{
				SystemPrompt:         agent.SystemPrompt,
				Messages:             []llmgateway.Message{{Role: "user", Content: prompt}},
				ThinkingBudgetTokens: cfg.ThinkingBudget,
			})
			if err != nil {
				return fmt.Errorf("hypotheses: %s: %w", agent.Name, err)
			}
			bb.Write("raw_hypotheses", resp.Text, agent.Name, "generate_hypotheses", nil)
			labels[i] = splitLines(resp.Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return deduplicateHypotheses(labels), nil
}

func deduplicateHypotheses(batches [][]string) []Hypothesis {
	seen := make(map[string]struct{})
	var out []Hypothesis
	idx := 1
	for _, batch := range batches {
		for _, line := range batch {
			label, desc := splitLabel(line)
			key := strings.ToLower(strings.TrimSpace(label))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, Hypothesis{ID: fmt.Sprintf("H%d", idx), Label: label, Description: desc})
			idx++
		}
	}
	return out
}

func listEvidence(ctx context.Context, cfg stage.Config, bb *blackboard.Blackboard, question string, agents []agentmodel.Agent, hypotheses []Hypothesis) ([]Evidence, error) {
	hypBlock := renderHypotheses(hypotheses)

	g, gctx := errgroup.WithContext(ctx)
	batches := make([][]string, len(agents))
	for i, agent := range agents {
		i, agent := i, agent
		g.Go(func() error {
			prompt := fmt.Sprintf(
				"As %s, list observable evidence relevant to these hypotheses:\n%s\n\n"+
					"QUESTION:\n%s\n\nOne piece of evidence per line.",
				agent.Name, hypBlock, question,
			)
			resp, err := cfg.Gateway.Run(gctx, agent.Name, llmgateway.Request{
				SystemPrompt:         agent.SystemPrompt,
				Messages:             []llmgateway.Message{{Role: "user", Content: prompt}},
				ThinkingBudgetTokens: cfg.ThinkingBudget,
			})
			if err != nil {
				return fmt.Errorf("evidence: %s: %w", agent.Name, err)
			}
			bb.Write("raw_evidence", resp.Text, agent.Name, "list_evidence", nil)
			batches[i] = splitLines(resp.Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []Evidence
	idx := 1
	for _, batch := range batches {
		for _, line := range batch {
			desc := strings.ToLower(strings.TrimSpace(line))
			if desc == "" {
				continue
			}
			if _, ok := seen[desc]; ok {
				continue
			}
			seen[desc] = struct{}{}
			out = append(out, Evidence{ID: fmt.Sprintf("E%d", idx), Description: line})
			idx++
		}
	}
	return out, nil
}

// buildMatrix fans every agent out against every evidence item — one call
// per (agent, evidence) pair, bounded to matrixConcurrency in flight — then
// aggregates each evidence×hypothesis cell by majority vote across agents,
// matching the scripted-agent matrix phase spec.md §4.5 and §8 describe.
func buildMatrix(ctx context.Context, cfg stage.Config, bb *blackboard.Blackboard, question string, agents []agentmodel.Agent, hypotheses []Hypothesis, evidence []Evidence) ([]MatrixCell, error) {
	hypBlock := renderHypotheses(hypotheses)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(matrixConcurrency)

	var mu sync.Mutex
	tally := make(map[[2]string]map[string]int)

	for _, ev := range evidence {
		ev := ev
		for _, agent := range agents {
			agent := agent
			g.Go(func() error {
				prompt := fmt.Sprintf(
					"As %s, score evidence %q against each hypothesis below as C (consistent), "+
						"I (inconsistent), or N (not applicable). One line per hypothesis, "+
						"formatted as `<hypothesis_id>: <score>`.\n\nEVIDENCE:\n%s\n\nHYPOTHESES:\n%s",
					agent.Name, ev.ID, ev.Description, hypBlock,
				)
				resp, err := cfg.Gateway.Run(gctx, agent.Name, llmgateway.Request{
					SystemPrompt: agent.SystemPrompt,
					Messages:     []llmgateway.Message{{Role: "user", Content: prompt}},
				})
				if err != nil {
					return fmt.Errorf("matrix: %s/%s: %w", ev.ID, agent.Name, err)
				}
				bb.Write("matrix_raw", resp.Text, agent.Name, "build_matrix", nil)

				mu.Lock()
				for _, cell := range parseMatrixLines(ev.ID, resp.Text) {
					key := [2]string{cell.EvidenceID, cell.HypothesisID}
					if tally[key] == nil {
						tally[key] = make(map[string]int)
					}
					tally[key][cell.Score]++
				}
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	matrix := make([]MatrixCell, 0, len(tally))
	for key, counts := range tally {
		matrix = append(matrix, MatrixCell{EvidenceID: key[0], HypothesisID: key[1], Score: majorityScore(counts)})
	}
	return matrix, nil
}

// majorityScore picks the most-voted score for one evidence×hypothesis
// cell, breaking ties C > I > N.
func majorityScore(counts map[string]int) string {
	best, bestCount := "N", -1
	for _, score := range []string{"C", "I", "N"} {
		if counts[score] > bestCount {
			best, bestCount = score, counts[score]
		}
	}
	return best
}

func eliminate(hypotheses []Hypothesis, matrix []MatrixCell) (eliminated, surviving []Hypothesis) {
	counts := make(map[string]int)
	for _, cell := range matrix {
		if cell.Score == "I" {
			counts[cell.HypothesisID]++
		}
	}
	ranked := append([]Hypothesis(nil), hypotheses...)
	for i := range ranked {
		ranked[i].InconsistencyCount = counts[ranked[i].ID]
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].InconsistencyCount < ranked[j].InconsistencyCount })

	if len(ranked) <= 1 {
		return nil, ranked
	}

	maxCount := ranked[len(ranked)-1].InconsistencyCount
	minCount := ranked[0].InconsistencyCount
	for _, h := range ranked {
		if h.InconsistencyCount == maxCount && maxCount > minCount {
			h.Eliminated = true
			eliminated = append(eliminated, h)
		} else {
			surviving = append(surviving, h)
		}
	}
	return eliminated, surviving
}

// computeDiagnosticity ranks evidence by how much its scores vary across
// hypotheses — evidence whose verdict never changes tells us nothing.
func computeDiagnosticity(evidence []Evidence, matrix []MatrixCell, hypotheses []Hypothesis) []Evidence {
	byEvidence := make(map[string]map[string]string)
	for _, cell := range matrix {
		if byEvidence[cell.EvidenceID] == nil {
			byEvidence[cell.EvidenceID] = make(map[string]string)
		}
		byEvidence[cell.EvidenceID][cell.HypothesisID] = cell.Score
	}

	out := append([]Evidence(nil), evidence...)
	for i, ev := range out {
		unique := make(map[string]struct{})
		for _, h := range hypotheses {
			score := byEvidence[ev.ID][h.ID]
			if score == "" {
				score = "N"
			}
			unique[score] = struct{}{}
		}
		if len(hypotheses) > 0 {
			out[i].DiagnosticScore = float64(len(unique)) / float64(len(hypotheses))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DiagnosticScore > out[j].DiagnosticScore })
	return out
}

func renderHypotheses(hyps []Hypothesis) string {
	if len(hyps) == 0 {
		return "None"
	}
	var b strings.Builder
	for _, h := range hyps {
		fmt.Fprintf(&b, "- %s: %s — %s (inconsistencies: %d)\n", h.ID, h.Label, h.Description, h.InconsistencyCount)
	}
	return b.String()
}

func renderDiagnostic(evidence []Evidence) string {
	limit := 5
	if len(evidence) < limit {
		limit = len(evidence)
	}
	var b strings.Builder
	for _, ev := range evidence[:limit] {
		fmt.Fprintf(&b, "- %s: %s (diagnosticity: %.2f)\n", ev.ID, ev.Description, ev.DiagnosticScore)
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

func splitLabel(line string) (label, description string) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(line), ""
}

func parseMatrixLines(evidenceID, text string) []MatrixCell {
	var cells []MatrixCell
	for _, line := range splitLines(text) {
		hypID, score := splitLabel(line)
		if hypID == "" {
			continue
		}
		score = strings.ToUpper(strings.TrimSpace(score))
		if len(score) > 1 {
			score = score[:1]
		}
		if score == "" {
			score = "N"
		}
		cells = append(cells, MatrixCell{EvidenceID: evidenceID, HypothesisID: hypID, Score: score})
	}
	return cells
}
