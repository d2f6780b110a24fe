// Package voting implements ranked-choice agent voting: every agent
// submits a full ranking of the options, Borda points are tallied, and
// ties are broken by pairwise Condorcet comparison — grounded on
// `protocols/p20_borda_count/orchestrator.py` in the original source.
package voting

import (
	"context"
	"fmt"
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
const Key = "voting"

// Ballot is one agent's full ranking of the options, rank 1 = favorite.
type Ballot struct {
	Agent    string
	Rankings map[string]int // option -> rank
}

func init() {
	protocol.Register(Key, Run)
}

// Run collects a ballot from every agent, computes Borda scores, breaks
// ties by Condorcet pairwise comparison, and writes a closing report.
// Options are read from the blackboard's "question" entry: the question
// text's final line, comma-separated, names the candidates.
func Run(ctx context.Context, cfg stage.Config, question string, agents []agentmodel.Agent) (*blackboard.Blackboard, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("voting: at least one agent is required")
	}

	bb := blackboard.New(Key, nil)
	bb.Write("question", question, "system", "init", nil)

	prompt, options := question, splitOptions(question)
	if len(options) < 2 {
		return bb, fmt.Errorf("voting: question must end with a comma-separated option list of at least 2 options")
	}

	ballots, err := collectBallots(ctx, cfg, bb, prompt, agents, options)
	if err != nil {
		return bb, err
	}

	scores := computeBordaScores(ballots, options)
	ranking := rankByScore(options, scores)
	ranking = resolveTies(ranking, scores, ballots)

	bb.Write("borda_scores", renderScores(scores, options), "system", "tally", nil)
	bb.Write("final_ranking", strings.Join(ranking, " > "), "system", "tally", nil)

	reportPrompt := fmt.Sprintf(
		"Ranked-choice voting concluded for: %s\n\nFinal ranking (winner first): %s\n\nScores: %s\n\n"+
			"Write a short report explaining the outcome and any notable disagreement among voters.",
		question, strings.Join(ranking, " > "), renderScores(scores, options),
	)
	resp, err := cfg.Gateway.Run(ctx, "system", llmgateway.Request{
		Messages: []llmgateway.Message{{Role: "user", Content: reportPrompt}},
	})
	if err != nil {
		return bb, fmt.Errorf("voting: report: %w", err)
	}
	bb.Write("synthesis", resp.Text, "system", "synthesis", map[string]any{
		"token_usage": map[string]int{"input_tokens": resp.InputTokens, "output_tokens": resp.OutputTokens},
	})

	return bb, nil
}

func collectBallots(ctx context.Context, cfg stage.Config, bb *blackboard.Blackboard, question string, agents []agentmodel.Agent, options []string) ([]Ballot, error) {
	g, gctx := errgroup.WithContext(ctx)
	ballots := make([]Ballot, len(agents))

	for i, agent := range agents {
		i, agent := i, agent
		g.Go(func() error {
			optBlock := strings.Join(options, ", ")
			prompt := fmt.Sprintf(
				"As %s, rank these options from best (1) to worst (%d) for: %s\n\nOPTIONS: %s\n\n"+
					"Reply with one line per option: `<option>: <rank>`.",
				agent.Name, len(options), question, optBlock,
			)
			resp, err := cfg.Gateway.Run(gctx, agent.Name, llmgateway.Request{
				SystemPrompt: agent.SystemPrompt,
				Messages:     []llmgateway.Message{{Role: "user", Content: prompt}},
			})
			if err != nil {
				return fmt.Errorf("ballot: %s: %w", agent.Name, err)
			}
			bb.Write("ballots", resp.Text, agent.Name, "collect_rankings", nil)
			ballots[i] = Ballot{Agent: agent.Name, Rankings: parseRankings(resp.Text, options)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ballots, nil
}

// computeBordaScores awards k-rank points per option per ballot, where k
// is the option count: rank 1 earns k-1 points, the last rank earns 0.
func computeBordaScores(ballots []Ballot, options []string) map[string]int {
	k := len(options)
	scores := make(map[string]int, k)
	for _, opt := range options {
		scores[opt] = 0
	}
	for _, ballot := range ballots {
		for opt, rank := range ballot.Rankings {
			points := k - rank
			if points < 0 {
				points = 0
			}
			scores[opt] += points
		}
	}
	return scores
}

func rankByScore(options []string, scores map[string]int) []string {
	out := append([]string(nil), options...)
	sort.SliceStable(out, func(i, j int) bool { return scores[out[i]] > scores[out[j]] })
	return out
}

// resolveTies re-orders options sharing the same Borda score by pairwise
// head-to-head wins across all ballots (a Condorcet comparison within the
// tied group only).
func resolveTies(ranking []string, scores map[string]int, ballots []Ballot) []string {
	groups := make(map[int][]string)
	for _, opt := range ranking {
		s := scores[opt]
		groups[s] = append(groups[s], opt)
	}

	var keys []int
	for s := range groups {
		keys = append(keys, s)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(keys)))

	var resolved []string
	for _, s := range keys {
		group := groups[s]
		if len(group) == 1 {
			resolved = append(resolved, group[0])
			continue
		}
		resolved = append(resolved, condorcetRanking(group, ballots)...)
	}
	return resolved
}

func condorcetRanking(tied []string, ballots []Ballot) []string {
	wins := make(map[string]int, len(tied))
	for i, a := range tied {
		for _, b := range tied[i+1:] {
			aWins, bWins := 0, 0
			for _, ballot := range ballots {
				rankA, okA := ballot.Rankings[a]
				rankB, okB := ballot.Rankings[b]
				if !okA || !okB {
					continue
				}
				if rankA < rankB {
					aWins++
				} else if rankB < rankA {
					bWins++
				}
			}
			if aWins > bWins {
				wins[a]++
			} else if bWins > aWins {
				wins[b]++
			}
		}
	}
	out := append([]string(nil), tied...)
	sort.SliceStable(out, func(i, j int) bool { return wins[out[i]] > wins[out[j]] })
	return out
}

func renderScores(scores map[string]int, options []string) string {
	var b strings.Builder
	for _, opt := range options {
		fmt.Fprintf(&b, "%s: %d, ", opt, scores[opt])
	}
	return strings.TrimSuffix(b.String(), ", ")
}

// splitOptions pulls the candidate list from the question's final line —
// callers are expected to phrase the question as "... Options: a, b, c".
func splitOptions(question string) []string {
	lines := strings.Split(question, "\n")
	last := lines[len(lines)-1]
	idx := strings.LastIndex(last, ":")
	if idx == -1 {
		return nil
	}
	raw := strings.Split(last[idx+1:], ",")
	var out []string
	for _, o := range raw {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

func parseRankings(text string, options []string) map[string]int {
	out := make(map[string]int)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line == "" {
			continue
		}
		idx := strings.LastIndex(line, ":")
		if idx == -1 {
			continue
		}
		opt := fuzzyMatch(strings.TrimSpace(line[:idx]), options)
		rank, err := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
		if opt == "" || err != nil {
			continue
		}
		out[opt] = rank
	}
	return out
}

func fuzzyMatch(candidate string, options []string) string {
	lc := strings.ToLower(candidate)
	for _, opt := range options {
		if strings.ToLower(opt) == lc {
			return opt
		}
	}
	for _, opt := range options {
		if strings.Contains(strings.ToLower(opt), lc) || strings.Contains(lc, strings.ToLower(opt)) {
			return opt
		}
	}
	return ""
}
