// Package stage provides the five reusable stage executor factories every
// protocol orchestrator assembles its state machine from, grounded on
// `protocols/stages.py` in the original source.
package stage

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/agoraflow/agora/agentmodel"
	"github.com/agoraflow/agora/blackboard"
	"github.com/agoraflow/agora/llmgateway"
	"github.com/agoraflow/agora/tool"
)

// Executor is one stage's behavior: given the current blackboard and the
// agent roster for this protocol, it performs zero or more writes.
type Executor func(ctx context.Context, bb *blackboard.Blackboard, agents []agentmodel.Agent) error

// Config carries the shared dependencies every stage factory closes over.
type Config struct {
	Gateway             *llmgateway.Router
	Tools               *tool.Registry
	ThinkingModel       string
	ThinkingBudget      int
	OrchestrationModel  string
	ParallelConcurrency int
}

func (c Config) thinkingModel() string {
	if c.ThinkingModel != "" {
		return c.ThinkingModel
	}
	return "claude-opus-4-6"
}

func (c Config) thinkingBudget() int {
	if c.ThinkingBudget != 0 {
		return c.ThinkingBudget
	}
	return 10_000
}

func (c Config) orchestrationModel() string {
	if c.OrchestrationModel != "" {
		return c.OrchestrationModel
	}
	return "claude-haiku-4-5-20251001"
}

func tokenUsageMeta(resp llmgateway.Response) map[string]any {
	return map[string]any{
		"token_usage": map[string]int{
			"input_tokens":  resp.InputTokens,
			"output_tokens": resp.OutputTokens,
		},
	}
}

func agentRequest(cfg Config, agent agentmodel.Agent, prompt string, useThinking bool) llmgateway.Request {
	budget := 1000
	if useThinking {
		budget = cfg.thinkingBudget()
	}
	req := llmgateway.Request{
		SystemPrompt:         agent.SystemPrompt,
		Messages:             []llmgateway.Message{{Role: "user", Content: prompt}},
		ModelID:              agent.ModelID,
		MaxOutputTokens:      agent.MaxOutputTokens,
		Temperature:          agent.Temperature,
		ThinkingBudgetTokens: budget,
	}
	if cfg.Tools != nil && len(agent.Tools) > 0 {
		req.Tools = cfg.Tools.Specs(agent.Tools)
	}
	return req
}

// ParallelAgentStage has every agent answer independently from the same
// input topic; all responses land on topicOut, one write per agent.
func ParallelAgentStage(cfg Config, topicIn, topicOut, promptTemplate string, useThinking bool) Executor {
	return func(ctx context.Context, bb *blackboard.Blackboard, agents []agentmodel.Agent) error {
		input := latestContent(bb, topicIn)
		prompt := Format(promptTemplate, map[string]string{"question": input, "input": input}, input)

		g, gctx := errgroup.WithContext(ctx)
		if cfg.ParallelConcurrency > 0 {
			g.SetLimit(cfg.ParallelConcurrency)
		}
		for _, agent := range agents {
			agent := agent
			g.Go(func() error {
				resp, err := cfg.Gateway.Run(gctx, agent.Name, agentRequest(cfg, agent, prompt, useThinking))
				if err != nil {
					return fmt.Errorf("stage: parallel_agent: %s: %w", agent.Name, err)
				}
				bb.Write(topicOut, resp.Text, agent.Name, topicOut, tokenUsageMeta(resp))
				return nil
			})
		}
		return g.Wait()
	}
}

// RoundStage has every agent answer independently against the combined
// transcript of one or more prior topics — the shape multi-round debate
// and negotiation protocols use for their rebuttal/revision rounds, where
// each round must see every previous round's full output rather than a
// single latest entry.
func RoundStage(cfg Config, topicsIn []string, topicOut, promptTemplate string, useThinking bool) Executor {
	return func(ctx context.Context, bb *blackboard.Blackboard, agents []agentmodel.Agent) error {
		question := latestContent(bb, "question")

		g, gctx := errgroup.WithContext(ctx)
		if cfg.ParallelConcurrency > 0 {
			g.SetLimit(cfg.ParallelConcurrency)
		}
		for _, agent := range agents {
			agent := agent
			g.Go(func() error {
				reader := &blackboard.Reader{Name: agent.Name, Scopes: agent.ContextScope}
				var transcriptParts []string
				for _, topic := range topicsIn {
					transcriptParts = append(transcriptParts, formatEntries(bb.Read(topic, reader)))
				}
				transcript := strings.Join(transcriptParts, "\n\n")

				prompt := Format(promptTemplate, map[string]string{
					"question":        question,
					"input":           question,
					"prior_responses": transcript,
				}, transcript)

				resp, err := cfg.Gateway.Run(gctx, agent.Name, agentRequest(cfg, agent, prompt, useThinking))
				if err != nil {
					return fmt.Errorf("stage: round: %s: %w", agent.Name, err)
				}
				bb.Write(topicOut, resp.Text, agent.Name, topicOut, tokenUsageMeta(resp))
				return nil
			})
		}
		return g.Wait()
	}
}

// SequentialAgentStage runs agents in declared order, each one reading the
// prior agents' outputs from topicOut before contributing its own.
func SequentialAgentStage(cfg Config, topicIn, topicOut, promptTemplate string) Executor {
	return func(ctx context.Context, bb *blackboard.Blackboard, agents []agentmodel.Agent) error {
		input := latestContent(bb, topicIn)

		for _, agent := range agents {
			reader := &blackboard.Reader{Name: agent.Name, Scopes: agent.ContextScope}
			prior := bb.Read(topicOut, reader)
			priorText := formatPrior(prior)

			prompt := Format(promptTemplate, map[string]string{
				"question":        input,
				"input":           input,
				"prior_responses": priorText,
			}, input)

			resp, err := cfg.Gateway.Run(ctx, agent.Name, agentRequest(cfg, agent, prompt, true))
			if err != nil {
				return fmt.Errorf("stage: sequential_agent: %s: %w", agent.Name, err)
			}
			bb.Write(topicOut, resp.Text, agent.Name, topicOut, tokenUsageMeta(resp))
		}
		return nil
	}
}

// MechanicalStage makes a single orchestration-model call with no agent
// identity attached, over every entry currently on topicIn combined.
// parseFn, if non-nil, transforms the raw text before it's written.
func MechanicalStage(cfg Config, topicIn, topicOut, promptTemplate string, parseFn func(string) any) Executor {
	return func(ctx context.Context, bb *blackboard.Blackboard, _ []agentmodel.Agent) error {
		entries := bb.Read(topicIn, nil)
		if len(entries) == 0 {
			return nil
		}
		combined := formatEntries(entries)
		prompt := Format(promptTemplate, map[string]string{"input": combined}, combined)

		model := cfg.orchestrationModel()
		req := llmgateway.Request{
			Messages: []llmgateway.Message{{Role: "user", Content: prompt}},
			ModelID:  &model,
		}
		resp, err := cfg.Gateway.Run(ctx, "system", req)
		if err != nil {
			return fmt.Errorf("stage: mechanical: %w", err)
		}

		var content any = resp.Text
		if parseFn != nil {
			content = parseFn(resp.Text)
		}
		bb.Write(topicOut, content, "system", topicOut, tokenUsageMeta(resp))
		return nil
	}
}

// SynthesisStage reads several topics and produces one final aggregated
// write on topicOut, with the full thinking budget. The request names no
// model, so the gateway's default model serves it, not Config's thinking
// model.
func SynthesisStage(cfg Config, topicsIn []string, topicOut, promptTemplate string) Executor {
	return func(ctx context.Context, bb *blackboard.Blackboard, _ []agentmodel.Agent) error {
		sections := make(map[string]string, len(topicsIn))
		var allContent []string
		for _, topic := range topicsIn {
			entries := bb.Read(topic, nil)
			text := formatEntries(entries)
			sections[topic] = text
			if text != "" {
				allContent = append(allContent, text)
			}
		}

		question := latestContent(bb, "question")
		fallback := strings.Join(allContent, "\n\n")

		values := make(map[string]string, len(sections)+2)
		for k, v := range sections {
			values[k] = v
		}
		values["question"] = question
		values["input"] = question

		prompt := Format(promptTemplate, values, fallback)

		req := llmgateway.Request{
			Messages:             []llmgateway.Message{{Role: "user", Content: prompt}},
			ThinkingBudgetTokens: cfg.thinkingBudget(),
		}
		resp, err := cfg.Gateway.Run(ctx, "system", req)
		if err != nil {
			return fmt.Errorf("stage: synthesis: %w", err)
		}
		bb.Write(topicOut, resp.Text, "system", topicOut, tokenUsageMeta(resp))
		return nil
	}
}

func latestContent(bb *blackboard.Blackboard, topic string) string {
	entry := bb.ReadLatest(topic, nil)
	if entry == nil {
		return ""
	}
	return fmt.Sprint(entry.Content)
}

func formatPrior(entries []blackboard.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("[%s]: %v", e.Author, e.Content))
	}
	return strings.Join(parts, "\n\n")
}

func formatEntries(entries []blackboard.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Author == "system" {
			parts = append(parts, fmt.Sprint(e.Content))
		} else {
			parts = append(parts, fmt.Sprintf("=== %s ===\n%v", e.Author, e.Content))
		}
	}
	return strings.Join(parts, "\n\n")
}
