package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-assist/internal/domain"
	"github.com/spec-kit/ticket-assist/internal/events"
	"github.com/spec-kit/ticket-assist/internal/repository"
	apperrors "github.com/spec-kit/ticket-assist/pkg/errorutil"
)

const (
	MsgAlreadyResolved  = domain.MsgAssistSkippedResolved
	MsgAssistTriggered  = "Moderator assistance triggered for ticket."
	MsgTicketProcessing = "Ticket created and processing started successfully"
)

// TicketService owns the ticket status state machine, comment rules and
// the accept/reject lifecycle of AI comments.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Deadline    *time.Time
}

// TicketView is a ticket together with the accounts it references.
type TicketView struct {
	Ticket domain.Ticket
	People map[string]domain.User
}

// Person returns the referenced account, if known.
func (v TicketView) Person(id *string) *domain.User {
	if id == nil {
		return nil
	}
	user, ok := v.People[*id]
	if !ok {
		return nil
	}
	return &user
}

// Listing page bounds.
const (
	DefaultPageSize = 100
	MaxPageSize     = 500
)

// Page selects a window of a ticket listing.
type Page struct {
	Limit  int
	Offset int
}

// Validate rejects windows outside the allowed bounds.
func (p Page) Validate() error {
	if p.Limit < 1 || p.Limit > MaxPageSize {
		return apperrors.NewValidationError("invalid page size", map[string]any{"limit": p.Limit, "max": MaxPageSize})
	}
	if p.Offset < 0 {
		return apperrors.NewValidationError("invalid page offset", map[string]any{"offset": p.Offset})
	}
	return nil
}

// OpenResult reports whether moderator assistance was triggered.
type OpenResult struct {
	Triggered bool
	Message   string
	EventID   string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateTicket stores a new ticket and triggers triage. A failed publish is
// logged; the stale-triage sweeper requeues the ticket later.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Principal, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, apperrors.NewValidationError("title and description are required", nil)
	}

	ticket := &domain.Ticket{
		Title:         title,
		Description:   description,
		Status:        domain.TicketStatusTodo,
		CreatedBy:     actor.UserID,
		RelatedSkills: []string{},
		Deadline:      input.Deadline,
		Comments:      []domain.Comment{},
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	createdBy := actor.UserID
	s.publish(ctx, events.EventTicketCreated, events.TicketCreatedPayload{
		TicketID:    ticket.ID,
		Title:       ticket.Title,
		Description: ticket.Description,
		CreatedBy:   &createdBy,
	})
	return ticket, nil
}

// ListTickets returns one page of every ticket for moderators and admins,
// and of their own tickets for users. Newest first.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Principal, page Page) ([]TicketView, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	filter := repository.TicketFilter{Limit: page.Limit, Offset: page.Offset}
	if !actor.Role.IsElevated() {
		owner := actor.UserID
		filter.CreatedBy = &owner
	}
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	people, err := s.expand(ctx, tickets...)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	views := make([]TicketView, 0, len(tickets))
	for _, ticket := range tickets {
		views = append(views, TicketView{Ticket: ticket, People: people})
	}
	return views, nil
}

// GetTicket returns one ticket. Users only see tickets they created.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Principal, ticketID string) (*TicketView, error) {
	ticket, err := s.visibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, ticket)
}

// OpenTicket triggers moderator assistance unless the ticket is resolved.
func (s *TicketService) OpenTicket(ctx context.Context, actor domain.Principal, ticketID string) (*OpenResult, error) {
	ticket, err := s.visibleTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusResolved {
		return &OpenResult{Message: MsgAlreadyResolved}, nil
	}

	event, err := events.NewEvent(events.EventTicketOpened, events.TicketOpenedPayload{
		TicketID: ticket.ID,
		OpenedBy: actor.UserID,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &OpenResult{Triggered: true, Message: MsgAssistTriggered, EventID: event.ID}, nil
}

// UpdateStatus sets any of the three statuses. Only the creator or an
// admin may do so.
func (s *TicketService) UpdateStatus(ctx context.Context, actor domain.Principal, ticketID, status string) (*TicketView, error) {
	next := domain.TicketStatus(status)
	if !next.Valid() {
		return nil, apperrors.NewValidationError("invalid status value", map[string]any{"status": status})
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.CreatedBy != actor.UserID && !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("not authorized to update status")
	}

	updated, err := s.update(ctx, ticketID, domain.TicketPatch{Status: &next})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, updated)
}

// AddComment appends a human comment. The creator, moderators and admins
// may comment.
func (s *TicketService) AddComment(ctx context.Context, actor domain.Principal, ticketID, body string) (*TicketView, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("comment body is required", nil)
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.CreatedBy != actor.UserID && !actor.Role.IsElevated() {
		return nil, apperrors.NewForbidden("not authorized to comment")
	}

	now := s.now()
	author := actor.UserID
	comment := domain.Comment{
		ID:        uuid.NewString(),
		AuthorID:  &author,
		Role:      string(actor.Role),
		Body:      body,
		Metadata:  domain.HumanMetadata(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	updated, err := s.update(ctx, ticketID, domain.TicketPatch{AppendComment: &comment})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, updated)
}

// DecideSuggestion records a moderator verdict on an AI comment. Rejecting
// moves the ticket back to IN_PROGRESS.
func (s *TicketService) DecideSuggestion(ctx context.Context, actor domain.Principal, ticketID, commentID, decision string) (*TicketView, error) {
	verdict := domain.Decision(decision)
	if !verdict.Valid() {
		return nil, apperrors.NewValidationError("invalid decision value", map[string]any{"decision": decision})
	}
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, apperrors.NewValidationError("invalid ticket identifier", map[string]any{"ticket_id": ticketID})
	}
	if _, err := uuid.Parse(commentID); err != nil {
		return nil, apperrors.NewValidationError("invalid comment identifier", map[string]any{"comment_id": commentID})
	}
	if !actor.Role.IsElevated() {
		return nil, apperrors.NewForbidden("not authorized to review AI responses")
	}

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	target := ticket.FindComment(commentID)
	if target == nil || !target.IsAIGenerated {
		return nil, apperrors.NewValidationError("only AI-generated suggestions can be accepted or rejected",
			map[string]any{"comment_id": commentID})
	}

	decided := *target
	decided.Metadata = target.Metadata.WithDecision(domain.AIDecision{
		Decision:  verdict,
		DecidedBy: actor.UserID,
		DecidedAt: s.now(),
	})
	decided.UpdatedAt = decided.Metadata.Decision.DecidedAt

	patch := domain.TicketPatch{ReplaceComment: &decided}
	if verdict == domain.DecisionRejected {
		status := domain.TicketStatusInProgress
		patch.Status = &status
	}
	updated, err := s.update(ctx, ticketID, patch)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, updated)
}

func (s *TicketService) visibleTicket(ctx context.Context, actor domain.Principal, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsElevated() && ticket.CreatedBy != actor.UserID {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

func (s *TicketService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, apperrors.NewValidationError("invalid ticket identifier", map[string]any{"ticket_id": ticketID})
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return ticket, nil
}

func (s *TicketService) update(ctx context.Context, ticketID string, patch domain.TicketPatch) (*domain.Ticket, error) {
	updated, err := s.tickets.UpdateByID(ctx, ticketID, patch)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return updated, nil
}

func (s *TicketService) view(ctx context.Context, ticket *domain.Ticket) (*TicketView, error) {
	people, err := s.expand(ctx, *ticket)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &TicketView{Ticket: *ticket, People: people}, nil
}

// expand loads creators, assignees and comment authors in one query.
func (s *TicketService) expand(ctx context.Context, tickets ...domain.Ticket) (map[string]domain.User, error) {
	seen := map[string]struct{}{}
	var ids []string
	add := func(id *string) {
		if id == nil || *id == "" {
			return
		}
		if _, ok := seen[*id]; ok {
			return
		}
		seen[*id] = struct{}{}
		ids = append(ids, *id)
	}
	for i := range tickets {
		add(&tickets[i].CreatedBy)
		add(tickets[i].AssignedTo)
		for j := range tickets[i].Comments {
			add(tickets[i].Comments[j].AuthorID)
		}
	}
	return s.users.GetByIDs(ctx, ids)
}

func (s *TicketService) publish(ctx context.Context, name events.EventName, payload any) {
	if s.dispatcher == nil {
		return
	}
	event, err := events.NewEvent(name, payload)
	if err == nil {
		err = s.dispatcher.Publish(ctx, event)
	}
	if err != nil {
		s.logger.Warn("event publish failed", zap.String("event", string(name)), zap.Error(err))
	}
}
