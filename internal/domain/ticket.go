package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a ticket or user does not exist.
var ErrNotFound = errors.New("not found")

// ErrTriageClaimed is returned when another triage run already owns a ticket.
var ErrTriageClaimed = errors.New("triage already claimed by another run")

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusTodo       TicketStatus = "TODO"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
)

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusTodo, TicketStatusInProgress, TicketStatusResolved:
		return true
	}
	return false
}

// MsgAssistSkippedResolved is reported when moderator assistance is asked
// for on a resolved ticket.
const MsgAssistSkippedResolved = "Ticket already resolved. Moderator assistance skipped."

// TicketPriority is assigned by triage.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// Ticket is the aggregate for support requests. Comments and the suggestion
// bundle live inside the ticket document and are updated with it.
type Ticket struct {
	ID            string
	Title         string
	Description   string
	Status        TicketStatus
	CreatedBy     string
	AssignedTo    *string
	Priority      *TicketPriority
	HelpfulNotes  *string
	RelatedSkills []string
	Deadline      *time.Time
	Comments      []Comment
	AISuggestions *AISuggestions
	// TriageRunKey is the run key of the first triage run that started on
	// the ticket. Later runs with a different key back off.
	TriageRunKey    *string
	TriageStartedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FindComment returns the comment with the given id, or nil.
func (t *Ticket) FindComment(id string) *Comment {
	for i := range t.Comments {
		if t.Comments[i].ID == id {
			return &t.Comments[i]
		}
	}
	return nil
}

// TicketPatch is a partial update applied atomically to one ticket.
// Nil fields are left untouched.
type TicketPatch struct {
	Status        *TicketStatus
	AssignedTo    *string
	Priority      *TicketPriority
	HelpfulNotes  *string
	RelatedSkills []string
	AISuggestions *AISuggestions
	// AppendComment is skipped when a comment with the same id already exists.
	AppendComment *Comment
	// ReplaceComment overwrites the comment with the same id.
	ReplaceComment *Comment
}

// Apply mutates t in place. Stores without native partial updates use it
// to share one definition of patch semantics.
func (p TicketPatch) Apply(t *Ticket) {
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.AssignedTo != nil {
		assignee := *p.AssignedTo
		t.AssignedTo = &assignee
	}
	if p.Priority != nil {
		priority := *p.Priority
		t.Priority = &priority
	}
	if p.HelpfulNotes != nil {
		notes := *p.HelpfulNotes
		t.HelpfulNotes = &notes
	}
	if p.RelatedSkills != nil {
		t.RelatedSkills = append([]string{}, p.RelatedSkills...)
	}
	if p.AISuggestions != nil {
		bundle := *p.AISuggestions
		t.AISuggestions = &bundle
	}
	if p.AppendComment != nil && t.FindComment(p.AppendComment.ID) == nil {
		t.Comments = append(t.Comments, *p.AppendComment)
	}
	if p.ReplaceComment != nil {
		if existing := t.FindComment(p.ReplaceComment.ID); existing != nil {
			*existing = *p.ReplaceComment
		}
	}
}

// Empty reports whether the patch changes nothing.
func (p TicketPatch) Empty() bool {
	return p.Status == nil && p.AssignedTo == nil && p.Priority == nil && p.HelpfulNotes == nil &&
		p.RelatedSkills == nil && p.AISuggestions == nil && p.AppendComment == nil && p.ReplaceComment == nil
}
