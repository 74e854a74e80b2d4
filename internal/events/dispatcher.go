package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNoHandler is returned when publishing or dispatching an event
	// nobody registered for.
	ErrNoHandler = errors.New("no handler registered for event")
	// ErrDuplicateHandler is returned on a second registration for a name.
	ErrDuplicateHandler = errors.New("handler already registered for event")
)

// EventHandler handles a delivered event.
type EventHandler func(context.Context, Event) error

// Dispatcher publishes events and routes them to their handler.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Register(name EventName, handler EventHandler) error
}

// Bus enqueues published events; consumers call Dispatch for each event
// they dequeue.
type Bus struct {
	queue Queue

	mu       sync.RWMutex
	handlers map[EventName]EventHandler
}

// NewBus creates a bus over queue.
func NewBus(queue Queue) *Bus {
	return &Bus{
		queue:    queue,
		handlers: make(map[EventName]EventHandler),
	}
}

// Register binds the single handler for name.
func (b *Bus) Register(name EventName, handler EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
	}
	b.handlers[name] = handler
	return nil
}

// Publish enqueues event for asynchronous delivery.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if _, ok := b.handler(event.Name); !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, event.Name)
	}
	return b.queue.Enqueue(ctx, event)
}

// Dispatch invokes the handler for event synchronously.
func (b *Bus) Dispatch(ctx context.Context, event Event) error {
	handler, ok := b.handler(event.Name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, event.Name)
	}
	return handler(ctx, event)
}

// Queue returns the underlying queue.
func (b *Bus) Queue() Queue {
	return b.queue
}

func (b *Bus) handler(name EventName) (EventHandler, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handler, ok := b.handlers[name]
	return handler, ok
}
