package agentmodel

import "strings"

// AssembleInput carries the extra attachments a stored custom agent may
// carry on top of its base system prompt.
type AssembleInput struct {
	SystemPrompt        string
	Frameworks          []Framework
	DeliverableTemplate string
	CommunicationStyle  string
}

// Assemble builds the full system prompt for a custom agent by appending,
// in a fixed order, its analytical frameworks, a deliverable template, and
// a communication style block — grounded on `api/runner.py#_resolve_agents`
// in the original source, which assembled prompts in exactly this order.
func Assemble(in AssembleInput) string {
	var b strings.Builder
	b.WriteString(in.SystemPrompt)

	if len(in.Frameworks) > 0 {
		b.WriteString("\n\n## Analytical Frameworks\n")
		for _, fw := range in.Frameworks {
			b.WriteString("\n### ")
			b.WriteString(fw.Name)
			b.WriteString("\n")
			b.WriteString(fw.Description)
			b.WriteString("\n**When to use:** ")
			b.WriteString(fw.WhenToUse)
			b.WriteString("\n")
		}
	}

	if in.DeliverableTemplate != "" {
		b.WriteString("\n\n## Deliverable Template\n")
		b.WriteString(in.DeliverableTemplate)
	}

	if in.CommunicationStyle != "" {
		b.WriteString("\n\n## Communication Style\n")
		b.WriteString(in.CommunicationStyle)
	}

	return b.String()
}
