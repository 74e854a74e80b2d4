package worker

import (
	"context"

	"github.com/spec-kit/ticket-assist/internal/events"
	"github.com/spec-kit/ticket-assist/internal/workflow"
)

// TriageRunner runs the triage workflow.
type TriageRunner interface {
	Run(ctx context.Context, runKey, ticketID string) (*workflow.TriageOutcome, error)
}

// AssistRunner runs the moderator-assist workflow.
type AssistRunner interface {
	Run(ctx context.Context, runKey, ticketID string) (*workflow.AssistOutcome, error)
}

// RegisterWorkflows binds each trigger to its workflow. The event id is the
// run key.
func RegisterWorkflows(dispatcher events.Dispatcher, triage TriageRunner, assist AssistRunner) error {
	err := dispatcher.Register(events.EventTicketCreated, func(ctx context.Context, event events.Event) error {
		var payload events.TicketCreatedPayload
		if err := event.Decode(&payload); err != nil {
			return workflow.NonRetriable(err)
		}
		_, err := triage.Run(ctx, event.ID, payload.TicketID)
		return err
	})
	if err != nil {
		return err
	}

	return dispatcher.Register(events.EventTicketOpened, func(ctx context.Context, event events.Event) error {
		var payload events.TicketOpenedPayload
		if err := event.Decode(&payload); err != nil {
			return workflow.NonRetriable(err)
		}
		_, err := assist.Run(ctx, event.ID, payload.TicketID)
		return err
	})
}
