// Package delphi implements the Delphi method: agents submit anonymous
// numeric estimates round over round, seeing only the aggregate spread
// from the prior round, until the interquartile spread converges or
// max_rounds is reached — grounded on
// `protocols/p18_delphi_method/orchestrator.py` in the original source.
package delphi

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/blackboard"
	"github.com/agoraflow/agora/llmgateway"
	"github.com/agoraflow/agora/protocol"
	"github.com/agoraflow/agora/stage"
)

// Key is this protocol's registry key.
const Key = "delphi"

// maxRounds bounds re-estimation; a converged spread exits early.
const maxRounds = 3

// convergenceRatio is the maximum IQR/median ratio counted as converged.
const convergenceRatio = 0.15

// Estimate is one agent's numeric estimate for a round.
type Estimate struct {
	Agent     string
	Value     float64
	Reasoning string
}

// RoundStats summarizes one round's estimate distribution.
type RoundStats struct {
	Round   int
	Median  float64
	IQRLow  float64
	IQRHigh float64
	Spread  float64
}

func init() {
	protocol.Register(Key, Run)
}

// Run executes the initial-estimate round, then up to maxRounds-1
// revision rounds (each seeing the prior round's aggregate spread only,
// never individual attributions — anonymity is the point), stopping
// early once the spread converges, then synthesizes.
func Run(ctx context.Context, cfg stage.Config, question string, agents []agentmodel.Agent) (*blackboard.Blackboard, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("delphi: at least one agent is required")
	}

	bb := blackboard.New(Key, nil)
	bb.Write("question", question, "system", "init", nil)

	var rounds []RoundStats
	var lastEstimates []Estimate
	converged := false

	for round := 1; round <= maxRounds; round++ {
		var prompt string
		if round == 1 {
			prompt = fmt.Sprintf(
				"Give your best numeric estimate for: %s\n\n"+
					"Reply as `estimate: <number>` followed by one line of reasoning.", question)
		} else {
			prompt = fmt.Sprintf(
				"Round %d re-estimation for: %s\n\nPrior round: median %.2f, interquartile range [%.2f, %.2f].\n\n"+
					"Revise your estimate in light of the group's spread. "+
					"Reply as `estimate: <number>` followed by one line of reasoning.",
				round, question, rounds[len(rounds)-1].Median, rounds[len(rounds)-1].IQRLow, rounds[len(rounds)-1].IQRHigh,
			)
		}

		estimates, err := collectEstimates(ctx, cfg, bb, prompt, agents, round)
		if err != nil {
			return bb, err
		}
		lastEstimates = estimates

		stats := computeStats(round, estimates)
		rounds = append(rounds, stats)
		bb.Write("round_stats", fmt.Sprintf("round %d: median=%.2f iqr=[%.2f,%.2f]", stats.Round, stats.Median, stats.IQRLow, stats.IQRHigh), "system", "compute_stats", nil)

		converged = checkConvergence(stats)
		if converged {
			break
		}
	}

	last := rounds[len(rounds)-1]
	bb.Write("final_estimate", fmt.Sprintf("%.2f", last.Median), "system", "final", nil)

	estimatesBlock := renderEstimates(lastEstimates)
	prompt := fmt.Sprintf(
		"Delphi estimation concluded after %d round(s), converged=%v.\n\nQUESTION:\n%s\n\n"+
			"FINAL MEDIAN: %.2f (IQR [%.2f, %.2f])\n\nFINAL ROUND REASONING:\n%s\n\n"+
			"Write a summary explaining the group's final estimate and remaining uncertainty.",
		len(rounds), converged, question, last.Median, last.IQRLow, last.IQRHigh, estimatesBlock,
	)
	resp, err := cfg.Gateway.Run(ctx, "system", llmgateway.Request{
		Messages: []llmgateway.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return bb, fmt.Errorf("delphi: synthesis: %w", err)
	}
	bb.Write("synthesis", resp.Text, "system", "synthesis", map[string]any{
		"token_usage": map[string]int{"input_tokens": resp.InputTokens, "output_tokens": resp.OutputTokens},
	})

	return bb, nil
}

func collectEstimates(ctx context.Context, cfg stage.Config, bb *blackboard.Blackboard, prompt string, agents []agentmodel.Agent, round int) ([]Estimate, error) {
	g, gctx := errgroup.WithContext(ctx)
	estimates := make([]Estimate, len(agents))

	for i, agent := range agents {
		i, agent := i, agent
		g.Go(func() error {
			resp, err := cfg.Gateway.Run(gctx, agent.Name, llmgateway.Request{
				SystemPrompt: agent.SystemPrompt,
				Messages:     []llmgateway.Message{{Role: "user", Content: prompt}},
			})
			if err != nil {
				return fmt.Errorf("estimate: %s: %w", agent.Name, err)
			}
			bb.Write(fmt.Sprintf("estimates_round%d", round), resp.Text, agent.Name, "collect_estimates", nil)
			value, reasoning := parseEstimate(resp.Text)
			estimates[i] = Estimate{Agent: agent.Name, Value: value, Reasoning: reasoning}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return estimates, nil
}

var estimateRe = regexp.MustCompile(`(?i)estimate\s*:\s*(-?[0-9]+(?:\.[0-9]+)?)`)

func parseEstimate(text string) (value float64, reasoning string) {
	if m := estimateRe.FindStringSubmatch(text); m != nil {
		value, _ = strconv.ParseFloat(m[1], 64)
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 1 {
		reasoning = strings.TrimSpace(strings.Join(lines[1:], " "))
	}
	return value, reasoning
}

// computeStats mirrors _compute_stats: median plus a quartile-index IQR
// (falling back to min/max when fewer than 4 estimates are in).
func computeStats(round int, estimates []Estimate) RoundStats {
	values := make([]float64, len(estimates))
	for i, e := range estimates {
		values[i] = e.Value
	}
	sort.Float64s(values)

	n := len(values)
	median := medianOf(values)

	var iqrLow, iqrHigh float64
	if n < 4 {
		iqrLow, iqrHigh = values[0], values[n-1]
	} else {
		iqrLow = values[n/4]
		iqrHigh = values[(3*n)/4]
	}

	return RoundStats{Round: round, Median: median, IQRLow: iqrLow, IQRHigh: iqrHigh, Spread: iqrHigh - iqrLow}
}

func medianOf(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// checkConvergence reports convergence once the IQR spread is under 15%
// of the median, avoiding division by zero for a zero-valued median.
func checkConvergence(stats RoundStats) bool {
	if stats.Median == 0 {
		return stats.Spread == 0
	}
	ratio := stats.Spread / stats.Median
	if ratio < 0 {
		ratio = -ratio
	}
	return ratio < convergenceRatio
}

func renderEstimates(estimates []Estimate) string {
	var b strings.Builder
	for _, e := range estimates {
		fmt.Fprintf(&b, "- %s: %.2f — %s\n", e.Agent, e.Value, e.Reasoning)
	}
	return b.String()
}
