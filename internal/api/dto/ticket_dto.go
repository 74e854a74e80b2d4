package dto

import (
	"time"

	"github.com/spec-kit/ticket-assist/internal/domain"
	"github.com/spec-kit/ticket-assist/internal/service"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string     `json:"title" validate:"required,notblank,max=200"`
	Description string     `json:"description" validate:"required,notblank"`
	Deadline    *time.Time `json:"deadline"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AddCommentRequest payload.
type AddCommentRequest struct {
	Body string `json:"body" validate:"required,notblank"`
}

// DecisionRequest payload.
type DecisionRequest struct {
	Decision string `json:"decision" validate:"required"`
}

// PersonRef is an expanded user reference.
type PersonRef struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role,omitempty"`
}

// TicketSummary is the end-user row in ticket listings.
type TicketSummary struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Status      domain.TicketStatus `json:"status"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// TicketDetailResponse is the full ticket with references expanded. Users
// get it for their own tickets; moderators and admins for any.
type TicketDetailResponse struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	Status        domain.TicketStatus    `json:"status"`
	CreatedBy     *PersonRef             `json:"createdBy"`
	AssignedTo    *PersonRef             `json:"assignedTo"`
	Priority      *domain.TicketPriority `json:"priority"`
	HelpfulNotes  *string                `json:"helpfulNotes"`
	RelatedSkills []string               `json:"relatedSkills"`
	Deadline      *time.Time             `json:"deadline,omitempty"`
	Comments      []CommentResponse      `json:"comments"`
	AISuggestions *domain.AISuggestions  `json:"aiSuggestions"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// CommentResponse is a thread entry with its author expanded.
type CommentResponse struct {
	ID            string                 `json:"id"`
	Author        *PersonRef             `json:"author"`
	Role          string                 `json:"role"`
	Body          string                 `json:"body"`
	IsAIGenerated bool                   `json:"isAiGenerated"`
	Metadata      domain.CommentMetadata `json:"metadata"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// NewTicketSummary maps a ticket to the end-user projection.
func NewTicketSummary(ticket domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:          ticket.ID,
		Title:       ticket.Title,
		Description: ticket.Description,
		Status:      ticket.Status,
		CreatedAt:   ticket.CreatedAt,
	}
}

// NewTicketDetail maps a ticket view with expanded references.
func NewTicketDetail(view service.TicketView) TicketDetailResponse {
	ticket := view.Ticket
	comments := make([]CommentResponse, 0, len(ticket.Comments))
	for _, comment := range ticket.Comments {
		comments = append(comments, CommentResponse{
			ID:            comment.ID,
			Author:        personRef(view, comment.AuthorID),
			Role:          comment.Role,
			Body:          comment.Body,
			IsAIGenerated: comment.IsAIGenerated,
			Metadata:      comment.Metadata,
			CreatedAt:     comment.CreatedAt,
			UpdatedAt:     comment.UpdatedAt,
		})
	}
	skills := ticket.RelatedSkills
	if skills == nil {
		skills = []string{}
	}
	return TicketDetailResponse{
		ID:            ticket.ID,
		Title:         ticket.Title,
		Description:   ticket.Description,
		Status:        ticket.Status,
		CreatedBy:     personRef(view, &ticket.CreatedBy),
		AssignedTo:    personRef(view, ticket.AssignedTo),
		Priority:      ticket.Priority,
		HelpfulNotes:  ticket.HelpfulNotes,
		RelatedSkills: skills,
		Deadline:      ticket.Deadline,
		Comments:      comments,
		AISuggestions: ticket.AISuggestions,
		CreatedAt:     ticket.CreatedAt,
		UpdatedAt:     ticket.UpdatedAt,
	}
}

// personRef falls back to the bare id when the account is gone.
func personRef(view service.TicketView, id *string) *PersonRef {
	if id == nil || *id == "" {
		return nil
	}
	if user := view.Person(id); user != nil {
		return &PersonRef{ID: user.ID, Email: user.Email, Role: user.Role}
	}
	return &PersonRef{ID: *id}
}
