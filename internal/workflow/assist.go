package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-assist/internal/domain"
	"github.com/spec-kit/ticket-assist/internal/llm"
	"github.com/spec-kit/ticket-assist/internal/observability"
	"github.com/spec-kit/ticket-assist/internal/repository"
)

// AssistName identifies the moderator-assist workflow.
const AssistName = "moderator-assist"

const (
	digestSize       = 5
	noCommentsDigest = "No prior comments available."

	msgNoSuggestions = "No moderator suggestions generated."
)

// aiCommentSpace namespaces comment ids derived from run keys.
var aiCommentSpace = uuid.MustParse("6f1c4d5e-2a7b-4c39-9e0d-8b5a3f7e1c24")

// Suggester drafts moderator suggestions. A nil bundle without error means
// the model output was unusable.
type Suggester interface {
	Suggest(ctx context.Context, in llm.AssistInput) (*domain.AISuggestions, error)
}

// SuggestionNotifier emails the assigned moderator.
type SuggestionNotifier interface {
	NotifySuggestions(ctx context.Context, ticket domain.Ticket, bundle domain.AISuggestions) error
}

// AssistOutcome summarizes a moderator-assist run.
type AssistOutcome struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	CommentID string `json:"commentId,omitempty"`
}

// Assist generates suggestions for a reopened ticket and resolves it.
type Assist struct {
	scheduler *Scheduler
	tickets   repository.TicketRepository
	users     repository.UserRepository
	suggester Suggester
	notifier  SuggestionNotifier
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewAssist wires the moderator-assist workflow.
func NewAssist(
	scheduler *Scheduler,
	tickets repository.TicketRepository,
	users repository.UserRepository,
	suggester Suggester,
	notifier SuggestionNotifier,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Assist {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assist{
		scheduler: scheduler,
		tickets:   tickets,
		users:     users,
		suggester: suggester,
		notifier:  notifier,
		logger:    logger,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the workflow for ticketID under runKey.
func (w *Assist) Run(ctx context.Context, runKey, ticketID string) (*AssistOutcome, error) {
	outcome, err := w.run(ctx, w.scheduler.Begin(AssistName, runKey), ticketID)
	w.metrics.RecordRun(AssistName, runOutcome(err))
	return outcome, err
}

func (w *Assist) run(ctx context.Context, run *Run, ticketID string) (*AssistOutcome, error) {
	if ticketID == "" {
		return nil, NonRetriablef("ticketId is required for moderator assistance")
	}
	logger := run.Logger().With(zap.String("ticket_id", ticketID))

	ticket, err := Step(ctx, run, "load-ticket", func(ctx context.Context) (*domain.Ticket, error) {
		t, err := w.tickets.GetByID(ctx, ticketID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, NonRetriablef("ticket %s not found for moderator assistance", ticketID)
		}
		return t, err
	})
	if err != nil {
		return nil, err
	}

	if ticket.Status == domain.TicketStatusResolved {
		logger.Info("moderator assistance skipped; ticket resolved")
		return &AssistOutcome{Success: true, Message: domain.MsgAssistSkippedResolved}, nil
	}

	bundle, err := Step(ctx, run, "ai-moderator-assist", func(ctx context.Context) (*domain.AISuggestions, error) {
		return w.suggester.Suggest(ctx, llm.AssistInput{
			Title:        ticket.Title,
			Description:  ticket.Description,
			Priority:     priorityText(ticket.Priority),
			Status:       string(ticket.Status),
			HelpfulNotes: deref(ticket.HelpfulNotes),
			Digest:       w.digest(ctx, ticket.Comments),
		})
	})
	if err != nil {
		return nil, err
	}
	if bundle == nil {
		logger.Warn("moderator assist output unusable")
		return &AssistOutcome{Success: true, Message: msgNoSuggestions}, nil
	}

	commentID := uuid.NewSHA1(aiCommentSpace, []byte(run.Key())).String()
	updated, err := Step(ctx, run, "persist-moderator-suggestions", func(ctx context.Context) (*domain.Ticket, error) {
		status := domain.TicketStatusResolved
		patch := domain.TicketPatch{
			AISuggestions: bundle,
			Status:        &status,
		}
		if bundle.ReplyProposal != nil {
			now := w.now()
			patch.AppendComment = &domain.Comment{
				ID:            commentID,
				Role:          domain.AIAssistantRole,
				Body:          *bundle.ReplyProposal,
				IsAIGenerated: true,
				Metadata:      domain.SuggestionMetadata(bundle.Attachment()),
				CreatedAt:     now,
				UpdatedAt:     now,
			}
		}
		t, err := w.tickets.UpdateByID(ctx, ticketID, patch)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, NonRetriablef("ticket %s not found for moderator assistance", ticketID)
		}
		return t, err
	})
	if err != nil {
		return nil, err
	}

	_, err = Step(ctx, run, "notify-assigned-moderator", func(ctx context.Context) (bool, error) {
		if updated.AssignedTo == nil {
			return false, nil
		}
		if err := w.notifier.NotifySuggestions(ctx, *updated, *bundle); err != nil {
			logger.Warn("moderator suggestion email failed", zap.Error(err))
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	outcome := &AssistOutcome{Success: true}
	if bundle.ReplyProposal != nil {
		outcome.CommentID = commentID
	}
	logger.Info("moderator assistance completed", zap.String("comment_id", outcome.CommentID))
	return outcome, nil
}

// digest labels the last few comments by role, author email, or
// "participant".
func (w *Assist) digest(ctx context.Context, comments []domain.Comment) string {
	if len(comments) == 0 {
		return noCommentsDigest
	}
	history := comments
	if len(history) > digestSize {
		history = history[len(history)-digestSize:]
	}

	emails := map[string]domain.User{}
	var authorIDs []string
	for _, c := range history {
		if c.Role == "" && c.AuthorID != nil {
			authorIDs = append(authorIDs, *c.AuthorID)
		}
	}
	if len(authorIDs) > 0 && w.users != nil {
		found, err := w.users.GetByIDs(ctx, authorIDs)
		if err != nil {
			w.logger.Warn("comment author lookup failed", zap.Error(err))
		} else {
			emails = found
		}
	}

	var b strings.Builder
	b.WriteString("Recent comments:")
	for i, c := range history {
		label := c.Role
		if label == "" && c.AuthorID != nil {
			label = emails[*c.AuthorID].Email
		}
		if label == "" {
			label = "participant"
		}
		fmt.Fprintf(&b, "\n%d. %s: %s", i+1, label, c.Body)
	}
	return b.String()
}

func priorityText(p *domain.TicketPriority) string {
	if p == nil {
		return ""
	}
	return string(*p)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
