package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-assist/internal/config"
	"github.com/spec-kit/ticket-assist/internal/observability"
)

// NonRetriableError aborts a workflow run without further attempts.
type NonRetriableError struct {
	Err error
}

func (e *NonRetriableError) Error() string { return e.Err.Error() }

func (e *NonRetriableError) Unwrap() error { return e.Err }

// NonRetriable wraps err so the runner stops immediately.
func NonRetriable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetriableError{Err: err}
}

// NonRetriablef formats a NonRetriableError.
func NonRetriablef(format string, args ...any) error {
	return &NonRetriableError{Err: fmt.Errorf(format, args...)}
}

// IsNonRetriable reports whether err carries a NonRetriableError.
func IsNonRetriable(err error) bool {
	var target *NonRetriableError
	return errors.As(err, &target)
}

// StepRunner executes named steps. A step that completed before under the
// same run is not executed again; its recorded result is returned.
type StepRunner interface {
	RunStep(ctx context.Context, name string, fn func(ctx context.Context) (json.RawMessage, error)) (json.RawMessage, error)
}

// Step runs fn through runner and round-trips its result through JSON so
// replayed and fresh executions return identical values.
func Step[T any](ctx context.Context, runner StepRunner, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	raw, err := runner.RunStep(ctx, name, func(ctx context.Context) (json.RawMessage, error) {
		value, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, NonRetriable(fmt.Errorf("encode %s result: %w", name, err))
		}
		return encoded, nil
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, NonRetriable(fmt.Errorf("decode %s result: %w", name, err))
	}
	return out, nil
}

// RetryPolicy bounds step attempts.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// PolicyFromConfig converts workflow configuration into a RetryPolicy.
func PolicyFromConfig(cfg config.WorkflowConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff(),
		MaxBackoff:     cfg.MaxBackoff(),
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if p.InitialBackoff > 0 {
		exp.InitialInterval = p.InitialBackoff
	}
	if p.MaxBackoff > 0 {
		exp.MaxInterval = p.MaxBackoff
	}
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// Scheduler creates step runners bound to one workflow run.
type Scheduler struct {
	store   CheckpointStore
	policy  RetryPolicy
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewScheduler wires checkpoint storage, retry policy and observability.
func NewScheduler(store CheckpointStore, policy RetryPolicy, logger *zap.Logger, metrics *observability.Metrics) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{store: store, policy: policy, logger: logger, metrics: metrics}
}

// Begin returns the runner for runKey. Calling Begin again with the same
// key resumes the run from its checkpoints.
func (s *Scheduler) Begin(workflowName, runKey string) *Run {
	return &Run{
		scheduler: s,
		workflow:  workflowName,
		runKey:    runKey,
		logger:    s.logger.With(zap.String("workflow", workflowName), zap.String("run_key", runKey)),
	}
}

// Run is a StepRunner for a single workflow run.
type Run struct {
	scheduler *Scheduler
	workflow  string
	runKey    string
	logger    *zap.Logger
}

// Key returns the run key.
func (r *Run) Key() string { return r.runKey }

// Logger returns a logger annotated with the run.
func (r *Run) Logger() *zap.Logger { return r.logger }

func (r *Run) RunStep(ctx context.Context, name string, fn func(ctx context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	s := r.scheduler
	logger := r.logger.With(zap.String("step", name))

	cached, ok, err := s.store.Load(ctx, r.runKey, name)
	if err != nil {
		logger.Warn("checkpoint load failed; executing step", zap.Error(err))
	} else if ok {
		s.metrics.RecordStep(r.workflow, name, "cached")
		logger.Debug("step replayed from checkpoint")
		return cached, nil
	}

	ctx, span := otel.Tracer("ticket-assist/workflow").Start(ctx, r.workflow+"."+name)
	span.SetAttributes(
		attribute.String("workflow.name", r.workflow),
		attribute.String("workflow.run_key", r.runKey),
		attribute.String("workflow.step", name),
	)
	defer span.End()

	attempt := 0
	var result json.RawMessage
	operation := func() error {
		attempt++
		out, err := fn(ctx)
		if err != nil {
			if IsNonRetriable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.metrics.RecordStep(r.workflow, name, "retry")
		logger.Warn("step failed; retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, s.policy.backOff(ctx), notify); err != nil {
		outcome := "failed"
		if IsNonRetriable(err) {
			outcome = "non_retriable"
		}
		s.metrics.RecordStep(r.workflow, name, outcome)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("step failed", zap.Int("attempts", attempt), zap.String("outcome", outcome), zap.Error(err))
		return nil, fmt.Errorf("step %s: %w", name, err)
	}

	if result == nil {
		result = json.RawMessage("null")
	}
	if err := s.store.Save(ctx, r.runKey, name, result); err != nil {
		logger.Warn("checkpoint save failed", zap.Error(err))
	}
	s.metrics.RecordStep(r.workflow, name, "ok")
	logger.Debug("step completed", zap.Int("attempts", attempt))
	return result, nil
}
