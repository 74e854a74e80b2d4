package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueClosed is returned by Dequeue after Close.
var ErrQueueClosed = errors.New("event queue closed")

// Queue carries events from publishers to consumers.
type Queue interface {
	Enqueue(ctx context.Context, event Event) error
	// Dequeue blocks until an event is available, ctx is done, or the
	// queue is closed.
	Dequeue(ctx context.Context) (Event, error)
	Close() error
}

// MemoryQueue is a buffered channel queue for single-process deployments.
type MemoryQueue struct {
	events chan Event
	closed chan struct{}
}

// NewMemoryQueue creates a queue holding up to size pending events.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{
		events: make(chan Event, size),
		closed: make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, event Event) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.events <- event:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Event, error) {
	select {
	case event := <-q.events:
		return event, nil
	case <-q.closed:
		return Event{}, ErrQueueClosed
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (q *MemoryQueue) Close() error {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
	return nil
}

// Len reports pending events.
func (q *MemoryQueue) Len() int {
	return len(q.events)
}

// RedisQueue is a Redis list shared by every process; LPUSH on publish,
// BRPOP on consume.
type RedisQueue struct {
	client      *redis.Client
	key         string
	pollTimeout time.Duration
	closed      chan struct{}
}

// NewRedisQueue creates a queue on the list at key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{
		client:      client,
		key:         key,
		pollTimeout: time.Second,
		closed:      make(chan struct{}),
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return q.client.LPush(ctx, q.key, raw).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Event, error) {
	for {
		select {
		case <-q.closed:
			return Event{}, ErrQueueClosed
		case <-ctx.Done():
			return Event{}, ctx.Err()
		default:
		}

		result, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Event{}, ctx.Err()
			}
			return Event{}, err
		}
		// result is [key, value]
		var event Event
		if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
			return Event{}, fmt.Errorf("decode event: %w", err)
		}
		return event, nil
	}
}

func (q *RedisQueue) Close() error {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
	return nil
}
