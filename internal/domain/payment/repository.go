package payment

import (
	"context"
)

// Repository persists payment records and their audit trail. Methods called
// with a transactional context join that transaction.
type Repository interface {
	Create(ctx context.Context, payment *Payment) error

	GetByToken(ctx context.Context, token string) (*Payment, error)

	// GetByTokenForUpdate also locks the record until the surrounding
	// transaction ends.
	GetByTokenForUpdate(ctx context.Context, token string) (*Payment, error)

	// Update writes the fields gateways may change: status, message,
	// transaction id and attributes.
	Update(ctx context.Context, payment *Payment) error

	List(ctx context.Context, filter ListFilter) ([]*Payment, error)

	AddEvent(ctx context.Context, event *Event) error

	// ListEvents returns the events of a payment, oldest first.
	ListEvents(ctx context.Context, token string) ([]*Event, error)
}

// ListFilter narrows List. Zero values mean no filter; Limit defaults to 20.
type ListFilter struct {
	Status    *Status
	Variant   *Variant
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}
