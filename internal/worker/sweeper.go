package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-assist/internal/config"
	"github.com/spec-kit/ticket-assist/internal/domain"
	"github.com/spec-kit/ticket-assist/internal/events"
	"github.com/spec-kit/ticket-assist/internal/repository"
)

// Sweeper republishes ticket/created for tickets no triage run has claimed,
// for instance when the process died between insert and publish. Tickets
// whose triage started and then failed are left for manual intervention.
type Sweeper struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	cfg        config.SweeperConfig
	logger     *zap.Logger
	now        func() time.Time

	cron *cron.Cron
}

// NewSweeper creates a sweeper; Start schedules it.
func NewSweeper(tickets repository.TicketRepository, dispatcher events.Dispatcher, cfg config.SweeperConfig, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		tickets:    tickets,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start schedules the sweep on the configured cron spec.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("stale triage sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("stale triage sweeper scheduled", zap.String("schedule", s.cfg.Schedule))
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep republishes one batch and returns how many tickets were requeued.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.StaleAfter())
	stale, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:   []domain.TicketStatus{domain.TicketStatusTodo},
		Unassigned: true,
		Untriaged:  true,
		CreatedTo:  &cutoff,
		Limit:      s.cfg.BatchSize,
	})
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, ticket := range stale {
		createdBy := ticket.CreatedBy
		event, err := events.NewEvent(events.EventTicketCreated, events.TicketCreatedPayload{
			TicketID:    ticket.ID,
			Title:       ticket.Title,
			Description: ticket.Description,
			CreatedBy:   &createdBy,
		})
		if err != nil {
			return requeued, err
		}
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Warn("requeue failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		requeued++
	}
	if requeued > 0 {
		s.logger.Info("stale tickets requeued for triage", zap.Int("count", requeued))
	}
	return requeued, nil
}
