package domain

import "time"

// AIAssistantRole labels comments written by the moderator-assist workflow.
const AIAssistantRole = "ai-assistant"

// MetadataKind discriminates comment metadata.
type MetadataKind string

const (
	MetadataHuman                  MetadataKind = "human"
	MetadataAISuggestionAttachment MetadataKind = "ai-suggestion-attachment"
	MetadataAIDecision             MetadataKind = "ai-decision"
)

// Decision is a moderator verdict on an AI-generated comment.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

// Valid reports whether d is accepted or rejected.
func (d Decision) Valid() bool {
	return d == DecisionAccepted || d == DecisionRejected
}

// SuggestionAttachment ties an AI comment to the suggestion bundle it came from.
type SuggestionAttachment struct {
	FollowUpTasks   []FollowUpTask  `json:"followUpTasks"`
	SimilarTickets  []SimilarTicket `json:"similarTickets"`
	ConfidenceScore *float64        `json:"confidenceScore,omitempty"`
}

// AIDecision records who decided on an AI comment and when.
type AIDecision struct {
	Decision  Decision  `json:"decision"`
	DecidedBy string    `json:"decisionBy"`
	DecidedAt time.Time `json:"decisionAt"`
}

// CommentMetadata is a tagged variant. Human comments carry no payload;
// ai-suggestion-attachment carries Attachment; ai-decision carries
// Attachment and Decision.
type CommentMetadata struct {
	Kind       MetadataKind          `json:"kind"`
	Attachment *SuggestionAttachment `json:"attachment,omitempty"`
	Decision   *AIDecision           `json:"decision,omitempty"`
}

// HumanMetadata returns metadata for a comment written by a person.
func HumanMetadata() CommentMetadata {
	return CommentMetadata{Kind: MetadataHuman}
}

// SuggestionMetadata returns metadata for a freshly generated AI comment.
func SuggestionMetadata(attachment SuggestionAttachment) CommentMetadata {
	return CommentMetadata{Kind: MetadataAISuggestionAttachment, Attachment: &attachment}
}

// WithDecision moves AI metadata to the ai-decision kind.
func (m CommentMetadata) WithDecision(decision AIDecision) CommentMetadata {
	return CommentMetadata{Kind: MetadataAIDecision, Attachment: m.Attachment, Decision: &decision}
}

// Comment is an entry in a ticket thread. Only the decision part of the
// metadata of an AI-generated comment is ever changed after creation.
type Comment struct {
	ID            string          `json:"id"`
	AuthorID      *string         `json:"author,omitempty"`
	Role          string          `json:"role"`
	Body          string          `json:"body"`
	IsAIGenerated bool            `json:"isAiGenerated"`
	Metadata      CommentMetadata `json:"metadata"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}
