package service

import (
	"context"
	"time"
)

// TransactionManager runs fn in a database transaction. Repository calls
// made with the context handed to fn join that transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serialises work on a key across instances. A held key fails fast
// with ErrLockAcquisitionFailed.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}
