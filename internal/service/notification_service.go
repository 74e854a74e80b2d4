package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-assist/internal/domain"
	"github.com/spec-kit/ticket-assist/internal/mail"
	"github.com/spec-kit/ticket-assist/internal/repository"
)

// NotificationService composes workflow emails.
type NotificationService struct {
	sender mail.Sender
	users  repository.UserRepository
	logger *zap.Logger
}

// NotificationDependencies bundles collaborators.
type NotificationDependencies struct {
	Sender   mail.Sender
	UserRepo repository.UserRepository
	Logger   *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{sender: deps.Sender, users: deps.UserRepo, logger: logger}
}

// NotifyAssignment tells the assignee about a triaged ticket.
func (n *NotificationService) NotifyAssignment(ctx context.Context, ticket domain.Ticket, assignee domain.User) error {
	if strings.TrimSpace(assignee.Email) == "" {
		return errors.New("assignee has no email address")
	}
	subject := "Ticket Assigned"
	body := fmt.Sprintf(`Hi,

A new ticket has been assigned to you: %q

Priority: %s
Related skills: %s

Helpful notes:
%s

Please review the ticket dashboard for details.`,
		ticket.Title,
		valueOr(priorityValue(ticket.Priority), "unspecified"),
		valueOr(strings.Join(ticket.RelatedSkills, ", "), "none"),
		valueOr(stringValue(ticket.HelpfulNotes), "none"),
	)
	return n.send(ctx, ticket.ID, assignee.Email, subject, body)
}

// NotifySuggestions tells the assigned moderator that suggestions are ready.
func (n *NotificationService) NotifySuggestions(ctx context.Context, ticket domain.Ticket, bundle domain.AISuggestions) error {
	if ticket.AssignedTo == nil {
		return nil
	}
	moderator, err := n.users.GetByID(ctx, *ticket.AssignedTo)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if strings.TrimSpace(moderator.Email) == "" {
		return nil
	}
	subject := "AI suggestions ready for your ticket"
	body := fmt.Sprintf(`Hi,

AI-generated assistance is available for the ticket %q.

Suggested reply:
%s

Please review the ticket dashboard for follow-up tasks and related tickets.`,
		ticket.Title,
		valueOr(stringValue(bundle.ReplyProposal), "No reply suggestion provided."),
	)
	return n.send(ctx, ticket.ID, moderator.Email, subject, body)
}

func (n *NotificationService) send(ctx context.Context, ticketID, to, subject, body string) error {
	info, err := n.sender.Send(ctx, to, subject, body)
	if err != nil {
		return err
	}
	n.logger.Info("notification sent",
		zap.String("ticket_id", ticketID),
		zap.String("to", to),
		zap.String("transport", info.Transport),
		zap.String("message_id", info.MessageID),
	)
	return nil
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func priorityValue(p *domain.TicketPriority) string {
	if p == nil {
		return ""
	}
	return string(*p)
}
