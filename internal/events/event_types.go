package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventName enumerates supported triggers.
type EventName string

const (
	EventTicketCreated EventName = "ticket/created"
	EventTicketOpened  EventName = "ticket/opened"
)

// Event is a typed message delivered to exactly one registered handler.
// ID doubles as the workflow run key, so a redelivered event resumes the
// same run.
type Event struct {
	ID          string          `json:"id"`
	Name        EventName       `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"published_at"`
}

// TicketCreatedPayload starts triage.
type TicketCreatedPayload struct {
	TicketID    string  `json:"ticketId"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	CreatedBy   *string `json:"createdBy"`
}

// TicketOpenedPayload starts moderator assistance.
type TicketOpenedPayload struct {
	TicketID string `json:"ticketId"`
	OpenedBy string `json:"openedBy"`
}

// NewEvent encodes payload into a fresh event.
func NewEvent(name EventName, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return Event{
		ID:          uuid.NewString(),
		Name:        name,
		Payload:     raw,
		PublishedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into out.
func (e Event) Decode(out any) error {
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return nil
}
