package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-assist/internal/events"
	"github.com/spec-kit/ticket-assist/internal/workflow"
)

// Pool consumes events from the bus queue with a fixed number of workers.
type Pool struct {
	bus     *events.Bus
	workers int
	logger  *zap.Logger

	wg conc.WaitGroup
}

// NewPool creates a pool with n workers.
func NewPool(bus *events.Bus, n int, logger *zap.Logger) *Pool {
	if n <= 0 {
		n = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{bus: bus, workers: n, logger: logger}
}

// Start launches the workers. They stop when ctx is done or the queue is
// closed.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		id := i
		p.wg.Go(func() { p.loop(ctx, id) })
	}
	p.logger.Info("workflow workers started", zap.Int("workers", p.workers))
}

// Wait blocks until every worker returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) loop(ctx context.Context, id int) {
	logger := p.logger.With(zap.Int("worker", id))
	queue := p.bus.Queue()
	for {
		event, err := queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, events.ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			logger.Error("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		p.handle(ctx, logger, event)
	}
}

func (p *Pool) handle(ctx context.Context, logger *zap.Logger, event events.Event) {
	logger = logger.With(zap.String("event", string(event.Name)), zap.String("event_id", event.ID))

	var err error
	var catcher panics.Catcher
	catcher.Try(func() { err = p.bus.Dispatch(ctx, event) })
	if recovered := catcher.Recovered(); recovered != nil {
		logger.Error("event handler panicked", zap.String("panic", recovered.String()))
		return
	}

	switch {
	case err == nil:
		logger.Debug("event handled")
	case workflow.IsNonRetriable(err):
		logger.Error("workflow stopped; manual intervention required", zap.Error(err))
	default:
		logger.Error("workflow failed after retries", zap.Error(err))
	}
}
