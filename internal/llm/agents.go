package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/ticket-assist/internal/domain"
)

const triageSystemPrompt = `You are an expert AI assistant that processes technical support tickets.

Your job is to:
1. Summarize the issue.
2. Estimate its priority.
3. Provide helpful notes and resource links for human moderators.
4. List relevant technical skills required.

IMPORTANT:
- Respond with only valid raw JSON.
- Do NOT include markdown, code fences, comments, or any extra formatting.
- The format must be a raw JSON object.`

const triageUserPrompt = `You are a ticket triage agent. Only return a strict JSON object with no extra text, headers, or markdown.

Analyze the following support ticket and provide a JSON object with:

- summary: A short 1-2 sentence summary of the issue.
- priority: One of "low", "medium", or "high".
- helpfulNotes: A detailed technical explanation that a moderator can use to solve this issue. Include useful external links or resources if possible.
- relatedSkills: An array of relevant skills required to solve the issue (e.g., ["React", "PostgreSQL"]).

Respond ONLY in this JSON format:

{
"summary": "Short summary of the ticket",
"priority": "high",
"helpfulNotes": "Here are useful tips...",
"relatedSkills": ["React", "Node.js"]
}

---

Ticket information:

- Title: %s
- Description: %s`

const assistSystemPrompt = `You support human moderators handling technical support tickets.

Always respond with raw JSON only. Do not include markdown or additional prose.`

const assistUserPrompt = `You assist moderators resolving tickets. Return a strict JSON object with these fields:
{
    "replyProposal": "Suggested message to send back to the ticket author. Keep it actionable and empathetic.",
    "followUpTasks": [
        {
            "title": "Short task title",
            "suggestedAssigneeId": "Optional user id for a suggested assignee if available",
            "suggestedAssigneeName": "Optional name for the suggested assignee",
            "dueBy": "ISO date string deadline if you can infer one",
            "notes": "Additional implementation guidance"
        }
    ],
    "similarTickets": [
        {
            "ticketId": "Optional ticket identifier if referenced",
            "title": "Ticket title if known",
            "rationale": "Why this ticket is relevant"
        }
    ],
    "confidenceScore": 0.0-1.0 number representing confidence in replyProposal,
    "generatedAt": "ISO timestamp for when this was created"
}

Ticket context:
- Title: %s
- Description: %s
- Priority: %s
- Status: %s
- Helpful notes: %s

%s

If you cannot provide part of the response, return null for that field.`

// TriageAgent classifies new tickets.
type TriageAgent struct {
	completer  Completer
	normalizer *Normalizer
}

// NewTriageAgent wires a completer and normalizer.
func NewTriageAgent(completer Completer, normalizer *Normalizer) *TriageAgent {
	return &TriageAgent{completer: completer, normalizer: normalizer}
}

// Classify returns nil without error when the model produced nothing usable.
func (a *TriageAgent) Classify(ctx context.Context, title, description string) (*TriageResult, error) {
	raw, err := a.completer.Complete(ctx, triageSystemPrompt, fmt.Sprintf(triageUserPrompt, title, description))
	if err != nil {
		return nil, err
	}
	result, ok := a.normalizer.ParseTriage(raw)
	if !ok {
		return nil, nil
	}
	return result, nil
}

// AssistInput is the ticket context handed to the moderator-assist agent.
type AssistInput struct {
	Title        string
	Description  string
	Priority     string
	Status       string
	HelpfulNotes string
	Digest       string
}

// ModeratorAssistAgent drafts replies and follow-ups for moderators.
type ModeratorAssistAgent struct {
	completer  Completer
	normalizer *Normalizer
}

// NewModeratorAssistAgent wires a completer and normalizer.
func NewModeratorAssistAgent(completer Completer, normalizer *Normalizer) *ModeratorAssistAgent {
	return &ModeratorAssistAgent{completer: completer, normalizer: normalizer}
}

// Suggest returns nil without error when the model produced nothing usable.
func (a *ModeratorAssistAgent) Suggest(ctx context.Context, in AssistInput) (*domain.AISuggestions, error) {
	prompt := fmt.Sprintf(assistUserPrompt,
		orDefault(in.Title, "N/A"),
		orDefault(in.Description, "N/A"),
		orDefault(in.Priority, "unspecified"),
		orDefault(in.Status, "unspecified"),
		orDefault(in.HelpfulNotes, "none"),
		in.Digest,
	)
	raw, err := a.completer.Complete(ctx, assistSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	bundle, ok := a.normalizer.ParseModeratorAssist(raw)
	if !ok {
		return nil, nil
	}
	return bundle, nil
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
