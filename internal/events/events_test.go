package events

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_RegisterOnce(t *testing.T) {
	bus := NewBus(NewMemoryQueue(4))
	noop := func(context.Context, Event) error { return nil }

	require.NoError(t, bus.Register(EventTicketCreated, noop))
	err := bus.Register(EventTicketCreated, noop)
	assert.ErrorIs(t, err, ErrDuplicateHandler)
	require.NoError(t, bus.Register(EventTicketOpened, noop))
}

func TestBus_PublishRequiresHandler(t *testing.T) {
	queue := NewMemoryQueue(4)
	bus := NewBus(queue)

	event, err := NewEvent(EventTicketOpened, TicketOpenedPayload{TicketID: "t1", OpenedBy: "u1"})
	require.NoError(t, err)

	assert.ErrorIs(t, bus.Publish(context.Background(), event), ErrNoHandler)
	assert.Equal(t, 0, queue.Len())
}

func TestBus_PublishAndDispatch(t *testing.T) {
	ctx := context.Background()
	queue := NewMemoryQueue(4)
	bus := NewBus(queue)

	var got TicketCreatedPayload
	require.NoError(t, bus.Register(EventTicketCreated, func(_ context.Context, e Event) error {
		return e.Decode(&got)
	}))

	creator := "u1"
	event, err := NewEvent(EventTicketCreated, TicketCreatedPayload{TicketID: "t1", Title: "Broken", CreatedBy: &creator})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, event))

	delivered, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, event.ID, delivered.ID)
	require.NoError(t, bus.Dispatch(ctx, delivered))
	assert.Equal(t, "t1", got.TicketID)
	require.NotNil(t, got.CreatedBy)
	assert.Equal(t, "u1", *got.CreatedBy)
}

func TestMemoryQueue_CloseAndCancel(t *testing.T) {
	queue := NewMemoryQueue(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := queue.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, queue.Close())
	require.NoError(t, queue.Close())
	_, err = queue.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, queue.Enqueue(context.Background(), Event{}), ErrQueueClosed)
}

func TestRedisQueue_RoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	key := "ticket-assist:test:" + time.Now().Format("150405.000000")
	defer client.Del(ctx, key)
	queue := NewRedisQueue(client, key)

	first, err := NewEvent(EventTicketCreated, TicketCreatedPayload{TicketID: "t1"})
	require.NoError(t, err)
	second, err := NewEvent(EventTicketOpened, TicketOpenedPayload{TicketID: "t2"})
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(ctx, first))
	require.NoError(t, queue.Enqueue(ctx, second))

	got, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID, "fifo order")
	got, err = queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	require.NoError(t, queue.Close())
	_, err = queue.Dequeue(ctx)
	assert.True(t, errors.Is(err, ErrQueueClosed))
}
