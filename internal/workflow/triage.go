package workflow

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-assist/internal/domain"
	"github.com/spec-kit/ticket-assist/internal/llm"
	"github.com/spec-kit/ticket-assist/internal/observability"
	"github.com/spec-kit/ticket-assist/internal/repository"
)

// TriageName identifies the triage workflow in logs, metrics and checkpoints.
const TriageName = "triage"

// Classifier produces a triage classification. A nil result without error
// means the model output was unusable.
type Classifier interface {
	Classify(ctx context.Context, title, description string) (*llm.TriageResult, error)
}

// Assigner picks the handler for a classified ticket. It returns
// domain.ErrNoAssignee when nobody is eligible.
type Assigner interface {
	FindAssignee(ctx context.Context, skills []string) (*domain.User, error)
}

// AssignmentNotifier emails the new assignee.
type AssignmentNotifier interface {
	NotifyAssignment(ctx context.Context, ticket domain.Ticket, assignee domain.User) error
}

// Classification is the checkpointed outcome of the classification step.
type Classification struct {
	Classified    bool                  `json:"classified"`
	Summary       string                `json:"summary,omitempty"`
	Priority      domain.TicketPriority `json:"priority,omitempty"`
	HelpfulNotes  string                `json:"helpfulNotes,omitempty"`
	RelatedSkills []string              `json:"relatedSkills"`
}

// TriageOutcome summarizes a finished triage run.
type TriageOutcome struct {
	TicketID   string `json:"ticketId"`
	Classified bool   `json:"classified"`
	AssigneeID string `json:"assigneeId"`
	Notified   bool   `json:"notified"`
}

// Triage classifies a new ticket, assigns a handler and notifies them.
type Triage struct {
	scheduler  *Scheduler
	tickets    repository.TicketRepository
	classifier Classifier
	assigner   Assigner
	notifier   AssignmentNotifier
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewTriage wires the triage workflow.
func NewTriage(
	scheduler *Scheduler,
	tickets repository.TicketRepository,
	classifier Classifier,
	assigner Assigner,
	notifier AssignmentNotifier,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Triage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Triage{
		scheduler:  scheduler,
		tickets:    tickets,
		classifier: classifier,
		assigner:   assigner,
		notifier:   notifier,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run executes the workflow. Re-running with the same runKey resumes after
// the last completed step.
func (w *Triage) Run(ctx context.Context, runKey, ticketID string) (*TriageOutcome, error) {
	outcome, err := w.run(ctx, w.scheduler.Begin(TriageName, runKey), ticketID)
	w.metrics.RecordRun(TriageName, runOutcome(err))
	return outcome, err
}

func (w *Triage) run(ctx context.Context, run *Run, ticketID string) (*TriageOutcome, error) {
	logger := run.Logger().With(zap.String("ticket_id", ticketID))
	if ticketID == "" {
		return nil, NonRetriablef("ticketId is required for triage")
	}

	ticket, err := Step(ctx, run, "fetch-ticket", func(ctx context.Context) (*domain.Ticket, error) {
		t, err := w.tickets.GetByID(ctx, ticketID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, NonRetriablef("ticket %s not found", ticketID)
		}
		return t, err
	})
	if err != nil {
		return nil, err
	}

	_, err = Step(ctx, run, "update-ticket-status", func(ctx context.Context) (bool, error) {
		_, err := w.tickets.ClaimTriage(ctx, ticketID, run.Key())
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return false, NonRetriablef("ticket %s not found", ticketID)
		case errors.Is(err, domain.ErrTriageClaimed):
			return false, NonRetriable(err)
		}
		return err == nil, err
	})
	if err != nil {
		return nil, err
	}

	classification, err := Step(ctx, run, "ai-classification", func(ctx context.Context) (Classification, error) {
		result, err := w.classifier.Classify(ctx, ticket.Title, ticket.Description)
		if err != nil {
			return Classification{}, err
		}
		if result == nil {
			logger.Warn("triage classification unusable; continuing unclassified")
			return Classification{RelatedSkills: []string{}}, nil
		}
		return Classification{
			Classified:    true,
			Summary:       result.Summary,
			Priority:      result.Priority,
			HelpfulNotes:  result.HelpfulNotes,
			RelatedSkills: result.RelatedSkills,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	if classification.Classified {
		_, err = Step(ctx, run, "apply-classification", func(ctx context.Context) (bool, error) {
			status := domain.TicketStatusInProgress
			priority := classification.Priority
			notes := classification.HelpfulNotes
			skills := classification.RelatedSkills
			if skills == nil {
				skills = []string{}
			}
			return true, w.update(ctx, ticketID, domain.TicketPatch{
				Status:        &status,
				Priority:      &priority,
				HelpfulNotes:  &notes,
				RelatedSkills: skills,
			})
		})
		if err != nil {
			return nil, err
		}
	}

	assignee, err := Step(ctx, run, "assign-moderator", func(ctx context.Context) (*domain.User, error) {
		user, err := w.assigner.FindAssignee(ctx, classification.RelatedSkills)
		if errors.Is(err, domain.ErrNoAssignee) {
			return nil, NonRetriable(err)
		}
		if err != nil {
			return nil, err
		}
		assigneeID := user.ID
		if err := w.update(ctx, ticketID, domain.TicketPatch{AssignedTo: &assigneeID}); err != nil {
			return nil, err
		}
		return user, nil
	})
	if err != nil {
		return nil, err
	}

	notified, err := Step(ctx, run, "send-email-notification", func(ctx context.Context) (bool, error) {
		current, err := w.tickets.GetByID(ctx, ticketID)
		if err != nil {
			current = ticket
		}
		if err := w.notifier.NotifyAssignment(ctx, *current, *assignee); err != nil {
			logger.Warn("assignment email failed", zap.String("assignee_id", assignee.ID), zap.Error(err))
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("triage completed",
		zap.Bool("classified", classification.Classified),
		zap.String("assignee_id", assignee.ID),
	)
	return &TriageOutcome{
		TicketID:   ticketID,
		Classified: classification.Classified,
		AssigneeID: assignee.ID,
		Notified:   notified,
	}, nil
}

// update writes a patch; a ticket deleted mid-run is terminal.
func (w *Triage) update(ctx context.Context, ticketID string, patch domain.TicketPatch) error {
	_, err := w.tickets.UpdateByID(ctx, ticketID, patch)
	if errors.Is(err, domain.ErrNotFound) {
		return NonRetriablef("ticket %s not found", ticketID)
	}
	return err
}

func runOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsNonRetriable(err):
		return "non_retriable"
	default:
		return "failed"
	}
}
