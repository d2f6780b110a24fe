// Package agentmodel defines the Agent data type shared by every protocol
// orchestrator and the prompt-assembly helper the run controller uses to
// hydrate a full system prompt from a stored agent record.
package agentmodel

import "strings"

// Agent is a polymorphic actor. Builtin agents are code-registered and
// read-only; custom agents are store-backed and mutable between runs, but
// immutable for the duration of any single run (spec.md §3).
type Agent struct {
	Name         string
	SystemPrompt string

	// Optional overrides. A nil ModelID routes through the LLM gateway's
	// primary-provider fallback path (spec.md §4.7); a non-nil one routes
	// through the generic multi-provider path.
	ModelID         *string
	MaxOutputTokens *int
	Temperature     *float64
	Tools           []string
	ContextScope    []string
	Categories      []string

	Builtin bool
}

// HasScope reports whether the agent declares the given context scope, or
// "all". An agent with no declared scopes is treated as scope-less (sees
// everything) by the blackboard's filter.
func (a Agent) HasScope(scope string) bool {
	for _, s := range a.ContextScope {
		if s == scope || s == "all" {
			return true
		}
	}
	return false
}

// PrimaryScope returns the agent's first declared scope, falling back to a
// name-based keyword inference and finally "all" — mirrors
// `scoping.get_primary_scope` in the original Python source, which existed
// to assign a scope tag to agents that predate the context_scope field.
func (a Agent) PrimaryScope() string {
	if len(a.ContextScope) > 0 {
		return a.ContextScope[0]
	}
	lower := strings.ToLower(a.Name)
	for keyword, scope := range nameScopeMap {
		if strings.Contains(lower, keyword) {
			return scope
		}
	}
	return "all"
}

var nameScopeMap = map[string]string{
	"financial": "financial", "cfo": "financial", "revenue": "financial", "cro": "financial",
	"technology": "technical", "cto": "technical",
	"marketing": "market", "cmo": "market",
	"operations": "operational", "coo": "operational",
}

// KeyFor derives an agent's lookup key from its name, the same
// normalization the run controller and store use for custom agents —
// lowercased, spaces collapsed to hyphens. Builtin agents are keyed
// explicitly in the Builtin map instead; this is for display/matching
// contexts (result extraction, roster events) that only have the Agent
// value in hand.
func KeyFor(a Agent) string {
	return strings.ToLower(strings.ReplaceAll(a.Name, " ", "-"))
}

// InCategory reports whether the agent is tagged with the given category,
// used by the orchestrator's "@category" agent filter.
func (a Agent) InCategory(category string) bool {
	for _, c := range a.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Framework is an analytical framework attachment assembled into an agent's
// system prompt (spec.md §4.9 step 3).
type Framework struct {
	Name        string
	Description string
	WhenToUse   string
}

// Builtin is the fixed roster of code-registered C-suite agents, grounded
// on `protocols/agents.py#BUILTIN_AGENTS` in the original source.
var Builtin = map[string]Agent{
	"ceo": {
		Name:         "CEO",
		SystemPrompt: "You are a CEO focused on strategy, vision, competitive positioning, and stakeholder management.",
		Builtin:      true,
	},
	"cfo": {
		Name:         "CFO",
		SystemPrompt: "You are a CFO focused on financial risk, cash flow, unit economics, margins, and capital allocation.",
		ContextScope: []string{"financial"},
		Builtin:      true,
	},
	"cto": {
		Name:         "CTO",
		SystemPrompt: "You are a CTO focused on technical architecture, scalability, security, tech debt, and engineering execution.",
		ContextScope: []string{"technical"},
		Builtin:      true,
	},
	"cmo": {
		Name:         "CMO",
		SystemPrompt: "You are a CMO focused on market positioning, brand risk, customer acquisition, messaging, and competitive dynamics.",
		ContextScope: []string{"market"},
		Builtin:      true,
	},
	"coo": {
		Name:         "COO",
		SystemPrompt: "You are a COO focused on operations, process execution, resource allocation, scaling, and cross-functional coordination.",
		ContextScope: []string{"operational"},
		Builtin:      true,
	},
	"cpo": {
		Name:         "CPO",
		SystemPrompt: "You are a CPO focused on product-market fit, user needs, roadmap priorities, and competitive differentiation.",
		Builtin:      true,
	},
	"cro": {
		Name:         "CRO",
		SystemPrompt: "You are a CRO focused on revenue strategy, pipeline health, sales execution, and go-to-market alignment.",
		ContextScope: []string{"financial"},
		Builtin:      true,
	},
}
