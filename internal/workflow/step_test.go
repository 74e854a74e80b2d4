package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-assist/internal/observability"
)

func testPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func newTestScheduler(attempts int) (*Scheduler, *observability.Metrics) {
	metrics := observability.NewMetrics()
	return NewScheduler(NewMemoryCheckpoints(), testPolicy(attempts), nil, metrics), metrics
}

type payload struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

func TestStep_CachesCompletedSteps(t *testing.T) {
	scheduler, metrics := newTestScheduler(3)
	ctx := context.Background()

	calls := 0
	fn := func(context.Context) (payload, error) {
		calls++
		return payload{Value: "done", Count: calls}, nil
	}

	first, err := Step(ctx, scheduler.Begin("wf", "run-1"), "work", fn)
	require.NoError(t, err)
	second, err := Step(ctx, scheduler.Begin("wf", "run-1"), "work", fn)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)

	_, err = Step(ctx, scheduler.Begin("wf", "run-2"), "work", fn)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "other runs execute independently")

	steps := metrics.Snapshot()["workflow_steps"]
	assert.EqualValues(t, 2, steps["wf|work|ok"])
	assert.EqualValues(t, 1, steps["wf|work|cached"])
}

func TestStep_RetriesTransientFailures(t *testing.T) {
	scheduler, metrics := newTestScheduler(4)

	calls := 0
	out, err := Step(context.Background(), scheduler.Begin("wf", "run"), "flaky", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection reset")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, 3, calls)
	assert.EqualValues(t, 2, metrics.Snapshot()["workflow_steps"]["wf|flaky|retry"])
}

func TestStep_GivesUpAfterMaxAttempts(t *testing.T) {
	scheduler, _ := newTestScheduler(3)

	calls := 0
	_, err := Step(context.Background(), scheduler.Begin("wf", "run"), "broken", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("still down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.False(t, IsNonRetriable(err))
	assert.ErrorContains(t, err, "still down")
}

func TestStep_NonRetriableStopsImmediately(t *testing.T) {
	scheduler, metrics := newTestScheduler(5)

	calls := 0
	_, err := Step(context.Background(), scheduler.Begin("wf", "run"), "terminal", func(context.Context) (int, error) {
		calls++
		return 0, NonRetriablef("ticket %s not found", "t1")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsNonRetriable(err))
	assert.EqualValues(t, 1, metrics.Snapshot()["workflow_steps"]["wf|terminal|non_retriable"])

	_, err = Step(context.Background(), scheduler.Begin("wf", "run"), "terminal", func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "failed steps are not checkpointed")
}

func TestStep_NilPointerResult(t *testing.T) {
	scheduler, _ := newTestScheduler(1)
	out, err := Step(context.Background(), scheduler.Begin("wf", "run"), "empty", func(context.Context) (*payload, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestMemoryCheckpoints_CopiesData(t *testing.T) {
	store := NewMemoryCheckpoints()
	ctx := context.Background()
	data := []byte(`{"a":1}`)
	require.NoError(t, store.Save(ctx, "run", "step", data))
	data[2] = 'b'

	got, ok, err := store.Load(ctx, "run", "step")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(got))

	_, ok, err = store.Load(ctx, "run", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
