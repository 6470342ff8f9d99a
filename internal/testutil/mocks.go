package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/pagoscl/internal/domain/errors"
	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/cassiomorais/pagoscl/internal/repository/postgres"
)

// --- Payment Repository Mock ---

// MockPaymentRepository is an in-memory payment.Repository. Stored payments
// are copied on the way in and out, so callers only see persisted state.
type MockPaymentRepository struct {
	mu       sync.Mutex
	payments map[string]*payment.Payment
	events   map[string][]*payment.Event
	updates  int

	CreateFunc              func(ctx context.Context, p *payment.Payment) error
	GetByTokenFunc          func(ctx context.Context, token string) (*payment.Payment, error)
	GetByTokenForUpdateFunc func(ctx context.Context, token string) (*payment.Payment, error)
	UpdateFunc              func(ctx context.Context, p *payment.Payment) error
	ListFunc                func(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error)
	AddEventFunc            func(ctx context.Context, e *payment.Event) error
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[string]*payment.Payment),
		events:   make(map[string][]*payment.Event),
	}
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.Token]; ok {
		return domainErrors.NewDomainError("duplicate_token", "payment token already exists", domainErrors.ErrInvalidInput)
	}
	m.payments[p.Token] = clonePayment(p)
	return nil
}

func (m *MockPaymentRepository) GetByToken(ctx context.Context, token string) (*payment.Payment, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	return m.get(token)
}

func (m *MockPaymentRepository) GetByTokenForUpdate(ctx context.Context, token string) (*payment.Payment, error) {
	if m.GetByTokenForUpdateFunc != nil {
		return m.GetByTokenForUpdateFunc(ctx, token)
	}
	return m.get(token)
}

func (m *MockPaymentRepository) get(token string) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[token]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (m *MockPaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.Token]; !ok {
		return domainErrors.ErrPaymentNotFound
	}
	m.payments[p.Token] = clonePayment(p)
	m.updates++
	return nil
}

func (m *MockPaymentRepository) List(ctx context.Context, f payment.ListFilter) ([]*payment.Payment, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, f)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*payment.Payment
	for _, p := range m.payments {
		if f.Status != nil && p.Status != *f.Status {
			continue
		}
		if f.Variant != nil && p.Variant != *f.Variant {
			continue
		}
		out = append(out, clonePayment(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Token < out[j].Token
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPaymentRepository) AddEvent(ctx context.Context, e *payment.Event) error {
	if m.AddEventFunc != nil {
		return m.AddEventFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.Token] = append(m.events[e.Token], e)
	return nil
}

func (m *MockPaymentRepository) ListEvents(_ context.Context, token string) ([]*payment.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*payment.Event(nil), m.events[token]...), nil
}

// Events returns the recorded event types of a payment in order.
func (m *MockPaymentRepository) Events(token string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.events[token]))
	for _, e := range m.events[token] {
		types = append(types, e.Type)
	}
	return types
}

// AddPayment stores p directly, bypassing Create.
func (m *MockPaymentRepository) AddPayment(p *payment.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.Token] = clonePayment(p)
}

// Stored returns the persisted copy of a payment, or nil.
func (m *MockPaymentRepository) Stored(token string) *payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[token]
	if !ok {
		return nil
	}
	return clonePayment(p)
}

// Updates returns how many times Update persisted a payment.
func (m *MockPaymentRepository) Updates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

func clonePayment(p *payment.Payment) *payment.Payment {
	c := *p
	c.Attrs = make(map[string]json.RawMessage, len(p.Attrs))
	for k, v := range p.Attrs {
		c.Attrs[k] = append(json.RawMessage(nil), v...)
	}
	return &c
}

// --- Transaction Manager Mock ---

// MockTransactionManager runs fn without a real transaction.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Idempotency Store Mock ---

// MockIdempotencyStore keeps idempotent responses in memory.
type MockIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*postgres.IdempotencyEntry
}

func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{entries: make(map[string]*postgres.IdempotencyEntry)}
}

func (m *MockIdempotencyStore) Get(_ context.Context, key string) (*postgres.IdempotencyEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key], nil
}

func (m *MockIdempotencyStore) Set(_ context.Context, e *postgres.IdempotencyEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.Key]; ok {
		return false, nil
	}
	m.entries[e.Key] = e
	return true, nil
}

// --- Locker Mock ---

// MockLocker hands out in-process locks keyed by name.
type MockLocker struct {
	mu    sync.Mutex
	held  map[string]bool
	Calls []string
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]bool)}
}

// Hold marks key as taken by someone else.
func (m *MockLocker) Hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key] = true
}

func (m *MockLocker) Lock(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, key)
	if m.held[key] {
		return nil, fmt.Errorf("%w: %s", domainErrors.ErrLockAcquisitionFailed, key)
	}
	m.held[key] = true
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
		return nil
	}, nil
}
