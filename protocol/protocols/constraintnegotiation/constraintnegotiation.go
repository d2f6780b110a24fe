// Package constraintnegotiation implements multi-round constraint
// negotiation: agents submit opening constraint proposals, a mechanical
// stage extracts each agent's declared constraints into a typed list
// after the opening round and the first revision (the final revision is
// not extracted), agents revise in light of a peer-constraint
// table excluding their own declarations, finishing with a synthesis of
// the negotiated settlement — grounded on
// `protocols/p05_constraint_negotiation/orchestrator.py` and
// `constraints.py` in the original source.
package constraintnegotiation

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
	"github.com/agoraflow/agora/orchestrator"
	"github.com/agoraflow/agora/protocol"
	"github.com/agoraflow/agora/stage"
	"github.com/agoraflow/agora/trigger"
)

// Key is this protocol's registry key.
const Key = "constraint_negotiation"

const openingTemplate = "State the constraints you require for any acceptable solution to: {question}. " +
	"List each constraint with the minimum you'd settle for."

const revisionTemplate = "Negotiation so far:\n{prior_responses}\n\n" +
	"PEER CONSTRAINTS DECLARED SO FAR (excludes your own):\n{peer_constraints}\n\n" +
	"QUESTION:\n{question}\n\n" +
	"Revise your constraints in light of the other positions — note what you're willing to trade away " +
	"to satisfy peers' hard constraints."

const synthesisTemplate = "You are closing a constraint negotiation. Identify the constraints every party " +
	"can live with, flag any that remain in conflict, and propose a settlement.\n\n" +
	"QUESTION:\n{question}\n\nDECLARED CONSTRAINTS:\n{constraint_table}\n\n" +
	"OPENING POSITIONS:\n{opening}\n\nREVISIONS:\n{revision1}\n\n{revision2}"

const constraintExtractionTemplate = "Extract constraints from the following proposal. A constraint is a " +
	"specific requirement, limit, or condition that the author insists on.\n\n" +
	"For each constraint, provide:\n" +
	"- \"constraint_type\": one of budget, timeline, resource, technical, regulatory, strategic, operational\n" +
	"- \"description\": what the constraint requires\n" +
	"- \"value\": the specific threshold, deadline, or metric (or \"N/A\" if qualitative)\n" +
	"- \"strength\": \"hard\" if non-negotiable, \"soft\" if preferred\n\n" +
	"Output as a JSON array. If no constraints found, output [].\n\nPROPOSAL TEXT:\n{input}"

func init() {
	protocol.Register(Key, Run)
}

// constraintItem is one typed requirement declared by an agent, extracted
// mechanically from a round's free-text proposal — grounded on
// constraints.py's Constraint dataclass in the original source. SourceRole
// is assigned from the blackboard entry's author, not the model's
// self-reported value, so peer-exclusion can't be thrown off by a model
// that mislabels its own role.
type constraintItem struct {
	SourceRole  string `json:"-"`
	Kind        string `json:"constraint_type"`
	Description string `json:"description"`
	Value       string `json:"value"`
	Strength    string `json:"strength"`
}

// Run executes an opening round followed by two revision rounds. Each
// round's output is mechanically parsed into typed constraints before the
// next round starts, and every revision prompt carries a peer-constraint
// table excluding the reading agent's own declarations.
func Run(ctx context.Context, cfg stage.Config, question string, agents []agentmodel.Agent) (*blackboard.Blackboard, error) {
	def := orchestrator.Definition{
		ProtocolID: Key,
		Stages: []orchestrator.Stage{
			{
				Name:    "opening",
				Trigger: trigger.Always(),
				Execute: stage.ParallelAgentStage(cfg, "question", "opening", openingTemplate, true),
			},
			{
				Name:    "opening_constraints",
				Trigger: trigger.After("opening"),
				Execute: extractConstraints(cfg, "opening"),
			},
			{
				Name:    "revision1",
				Trigger: trigger.After("opening_constraints"),
				Execute: revisionRound(cfg, []string{"opening"}, "revision1"),
			},
			{
				Name:    "revision1_constraints",
				Trigger: trigger.After("revision1"),
				Execute: extractConstraints(cfg, "revision1"),
			},
			{
				Name:    "revision2",
				Trigger: trigger.After("revision1_constraints"),
				Execute: revisionRound(cfg, []string{"opening", "revision1"}, "revision2"),
			},
			{
				Name:    "synthesize",
				Trigger: trigger.AfterAll("opening", "revision1", "revision2"),
				Execute: synthesize(cfg),
			},
		},
	}
	return orchestrator.Run(ctx, def, question, agents)
}

// extractConstraints returns a mechanical stage that parses every entry
// currently on topicIn into a typed constraint list and appends it to the
// cumulative "constraints" topic, attributed to that entry's author —
// grounded on constraints.py's ConstraintExtractor in the original source.
func extractConstraints(cfg stage.Config, topicIn string) stage.Executor {
	return func(ctx context.Context, bb *blackboard.Blackboard, _ []agentmodel.Agent) error {
		entries := bb.Read(topicIn, nil)

		g, gctx := errgroup.WithContext(ctx)
		if cfg.ParallelConcurrency > 0 {
			g.SetLimit(cfg.ParallelConcurrency)
		}
		for _, entry := range entries {
			entry := entry
			g.Go(func() error {
				proposal := fmt.Sprint(entry.Content)
				prompt := stage.Format(constraintExtractionTemplate, map[string]string{"input": proposal}, proposal)

				req := llmgateway.Request{Messages: []llmgateway.Message{{Role: "user", Content: prompt}}}
				if cfg.OrchestrationModel != "" {
					model := cfg.OrchestrationModel
					req.ModelID = &model
				}
				resp, err := cfg.Gateway.Run(gctx, "system", req)
				if err != nil {
					return fmt.Errorf("constraintnegotiation: extract: %s: %w", entry.Author, err)
				}

				items := parseConstraints(resp.Text, entry.Author)
				bb.Write("constraints", items, "system", topicIn+"_constraints", map[string]any{
					"source_role": entry.Author,
					"token_usage": map[string]int{"input_tokens": resp.InputTokens, "output_tokens": resp.OutputTokens},
				})
				return nil
			})
		}
		return g.Wait()
	}
}

// revisionRound has every agent revise independently against the combined
// transcript of the named prior topics (filtered to the agent's own
// context scope) plus a peer-constraint table that excludes the agent's
// own declarations.
func revisionRound(cfg stage.Config, transcriptTopics []string, topicOut string) stage.Executor {
	return func(ctx context.Context, bb *blackboard.Blackboard, agents []agentmodel.Agent) error {
		question := readLatest(bb, "question")

		g, gctx := errgroup.WithContext(ctx)
		if cfg.ParallelConcurrency > 0 {
			g.SetLimit(cfg.ParallelConcurrency)
		}
		for _, agent := range agents {
			agent := agent
			g.Go(func() error {
				reader := &blackboard.Reader{Name: agent.Name, Scopes: agent.ContextScope}

				var transcriptParts []string
				for _, topic := range transcriptTopics {
					transcriptParts = append(transcriptParts, formatTranscript(bb.Read(topic, reader)))
				}
				transcript := strings.Join(transcriptParts, "\n\n")

				peerTable := formatConstraintTable(allConstraints(bb), agent.Name)

				prompt := stage.Format(revisionTemplate, map[string]string{
					"question":         question,
					"prior_responses":  transcript,
					"peer_constraints": peerTable,
				}, transcript)

				req := llmgateway.Request{
					SystemPrompt:         agent.SystemPrompt,
					Messages:             []llmgateway.Message{{Role: "user", Content: prompt}},
					ModelID:              agent.ModelID,
					MaxOutputTokens:      agent.MaxOutputTokens,
					Temperature:          agent.Temperature,
					ThinkingBudgetTokens: cfg.ThinkingBudget,
				}
				if cfg.Tools != nil && len(agent.Tools) > 0 {
					req.Tools = cfg.Tools.Specs(agent.Tools)
				}
				resp, err := cfg.Gateway.Run(gctx, agent.Name, req)
				if err != nil {
					return fmt.Errorf("constraintnegotiation: revision: %s: %w", agent.Name, err)
				}
				bb.Write(topicOut, resp.Text, agent.Name, topicOut, map[string]any{
					"token_usage": map[string]int{"input_tokens": resp.InputTokens, "output_tokens": resp.OutputTokens},
				})
				return nil
			})
		}
		return g.Wait()
	}
}

// synthesize closes the negotiation with the full transcript plus the
// complete (unfiltered) declared-constraint table.
func synthesize(cfg stage.Config) stage.Executor {
	return func(ctx context.Context, bb *blackboard.Blackboard, _ []agentmodel.Agent) error {
		question := readLatest(bb, "question")
		constraintTable := formatConstraintTable(allConstraints(bb), "")

		prompt := stage.Format(synthesisTemplate, map[string]string{
			"question":         question,
			"constraint_table": constraintTable,
			"opening":          formatTranscript(bb.Read("opening", nil)),
			"revision1":        formatTranscript(bb.Read("revision1", nil)),
			"revision2":        formatTranscript(bb.Read("revision2", nil)),
		}, "")

		resp, err := cfg.Gateway.Run(ctx, "system", llmgateway.Request{
			Messages:             []llmgateway.Message{{Role: "user", Content: prompt}},
			ThinkingBudgetTokens: cfg.ThinkingBudget,
		})
		if err != nil {
			return fmt.Errorf("constraintnegotiation: synthesis: %w", err)
		}
		bb.Write("synthesis", resp.Text, "system", "synthesize", map[string]any{
			"token_usage": map[string]int{"input_tokens": resp.InputTokens, "output_tokens": resp.OutputTokens},
		})
		return nil
	}
}

// allConstraints flattens every "constraints" write recorded so far.
func allConstraints(bb *blackboard.Blackboard) []constraintItem {
	var out []constraintItem
	for _, entry := range bb.Read("constraints", nil) {
		items, ok := entry.Content.([]constraintItem)
		if !ok {
			continue
		}
		out = append(out, items...)
	}
	return out
}

// formatConstraintTable renders declared constraints one per line,
// excluding excludeRole's own declarations when excludeRole is non-empty —
// grounded on ConstraintStore.format_for_prompt in the original source.
func formatConstraintTable(items []constraintItem, excludeRole string) string {
	var lines []string
	for _, c := range items {
		if excludeRole != "" && c.SourceRole == excludeRole {
			continue
		}
		label := "SOFT (preferred)"
		if c.Strength == "hard" {
			label = "HARD (non-negotiable)"
		}
		lines = append(lines, fmt.Sprintf("- [%s] [%s] %s: %s (value: %s)", c.SourceRole, label, c.Kind, c.Description, c.Value))
	}
	if len(lines) == 0 {
		return "(No constraints declared yet.)"
	}
	return strings.Join(lines, "\n")
}

func readLatest(bb *blackboard.Blackboard, topic string) string {
	entry := bb.ReadLatest(topic, nil)
	if entry == nil {
		return ""
	}
	return fmt.Sprint(entry.Content)
}

func formatTranscript(entries []blackboard.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("=== %s ===\n%v", e.Author, e.Content))
	}
	return strings.Join(parts, "\n\n")
}

var jsonArrayRe = regexp.MustCompile(`(?s)\[.*\]`)

// parseConstraints extracts a JSON array of constraints from model output
// that may wrap it in prose or markdown fences, tagging every item with
// the known author role rather than trusting a self-reported one.
func parseConstraints(text, role string) []constraintItem {
	match := jsonArrayRe.FindString(text)
	if match == "" {
		return nil
	}
	var raw []constraintItem
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil
	}
	for i := range raw {
		raw[i].SourceRole = role
		if raw[i].Strength != "hard" {
			raw[i].Strength = "soft"
		}
		if raw[i].Value == "" {
			raw[i].Value = "N/A"
		}
	}
	return raw
}
