package payment

import (
	"time"

	"github.com/google/uuid"
)

// Event types in a payment's history.
const (
	EventCreated       = "payment.created"
	EventStatusChanged = "payment.status_changed"
)

// Event is one entry in the audit trail of a payment.
type Event struct {
	ID        uuid.UUID
	Token     string
	Type      string
	Data      map[string]any
	CreatedAt time.Time
}

func NewEvent(token, eventType string, data map[string]any) *Event {
	return &Event{
		ID:        uuid.New(),
		Token:     token,
		Type:      eventType,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

// StatusChanged records a move from one status to another caused by a
// gateway operation.
func StatusChanged(p *Payment, operation string, from Status) *Event {
	return NewEvent(p.Token, EventStatusChanged, map[string]any{
		"operation": operation,
		"from":      string(from),
		"to":        string(p.Status),
		"message":   p.Message,
	})
}
