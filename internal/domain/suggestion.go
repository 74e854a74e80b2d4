package domain

import "time"

// FollowUpTask is a task proposed by the moderator-assist agent.
type FollowUpTask struct {
	Title                 string     `json:"title"`
	SuggestedAssigneeID   string     `json:"suggestedAssigneeId,omitempty"`
	SuggestedAssigneeName string     `json:"suggestedAssigneeName,omitempty"`
	DueBy                 *time.Time `json:"dueBy,omitempty"`
	Notes                 string     `json:"notes,omitempty"`
}

// SimilarTicket links to a related ticket.
type SimilarTicket struct {
	TicketID  string `json:"ticketId,omitempty"`
	Title     string `json:"title,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

// AISuggestions is the bundle produced by one moderator-assist run.
// It is replaced wholesale on every run.
type AISuggestions struct {
	ReplyProposal   *string         `json:"replyProposal"`
	FollowUpTasks   []FollowUpTask  `json:"followUpTasks"`
	SimilarTickets  []SimilarTicket `json:"similarTickets"`
	ConfidenceScore *float64        `json:"confidenceScore,omitempty"`
	GeneratedAt     time.Time       `json:"generatedAt"`
}

// Attachment returns the part of the bundle copied onto the AI comment.
func (s AISuggestions) Attachment() SuggestionAttachment {
	return SuggestionAttachment{
		FollowUpTasks:   s.FollowUpTasks,
		SimilarTickets:  s.SimilarTickets,
		ConfidenceScore: s.ConfidenceScore,
	}
}
