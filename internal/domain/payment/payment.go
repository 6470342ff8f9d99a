package payment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassiomorais/pagoscl/internal/domain/errors"
	"github.com/google/uuid"
)

// Status represents the payment status in the state machine
type Status string

const (
	StatusCreated   Status = "created"
	StatusWaiting   Status = "waiting"
	StatusPreauth   Status = "preauth"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusError     Status = "error"
	StatusRefunded  Status = "refunded"
)

// Variant names the gateway integration a payment is processed with.
type Variant string

const (
	VariantFlow  Variant = "flow"
	VariantKhipu Variant = "khipu"
	VariantPayku Variant = "payku"
	VariantDummy Variant = "dummy"
)

var transitions = map[Status][]Status{
	StatusCreated: {
		StatusWaiting,
		StatusError,
	},
	StatusWaiting: {
		StatusConfirmed,
		StatusRejected,
		StatusError,
	},
	StatusPreauth: {
		StatusConfirmed,
		StatusRejected,
		StatusError,
	},
	StatusConfirmed: {
		StatusRefunded,
	},
	StatusRejected: {}, // Terminal state
	StatusError:    {}, // Terminal state
	StatusRefunded: {}, // Terminal state
}

// CanTransitionTo checks if a payment in status from may move to status to.
func CanTransitionTo(from, to Status) bool {
	allowed, exists := transitions[from]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal checks if the status accepts no further transitions
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsPending reports whether the gateway still owes a final answer.
func (s Status) IsPending() bool {
	return s == StatusWaiting || s == StatusPreauth
}

// Details is the read-only view of a record that gateways build requests from.
type Details struct {
	Token        string
	Variant      Variant
	Description  string
	Total        int64
	Currency     string
	BillingEmail string
	SuccessURL   string
	FailureURL   string
	ProcessURL   string
}

// Record is the capability a gateway adapter gets over a host-owned payment.
// Adapters mutate status, transaction id and attributes, never the lifecycle.
type Record interface {
	Details() Details
	CurrentStatus() Status
	ChangeStatus(status Status, message string)
	ProviderTransactionID() string
	SetProviderTransactionID(id string)
	// Attr decodes the attribute stored under key into dst and reports
	// whether it was present.
	Attr(key string, dst any) (bool, error)
	SetAttr(key string, value any) error
}

// Payment is the host's payment record.
type Payment struct {
	Token         string
	Variant       Variant
	Description   string
	Total         int64
	Currency      string
	BillingEmail  string
	Status        Status
	Message       string
	TransactionID string
	Attrs         map[string]json.RawMessage
	SuccessURL    string
	FailureURL    string
	ProcessURL    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPayment creates a new payment in the created status with a fresh token.
func NewPayment(variant Variant, description string, total int64, currency, billingEmail string) (*Payment, error) {
	if variant == "" {
		return nil, errors.NewValidationError("variant", "cannot be empty")
	}
	if err := validateAmount(total, currency); err != nil {
		return nil, err
	}

	now := time.Now()
	return &Payment{
		Token:        uuid.New().String(),
		Variant:      variant,
		Description:  description,
		Total:        total,
		Currency:     currency,
		BillingEmail: billingEmail,
		Status:       StatusCreated,
		Attrs:        make(map[string]json.RawMessage),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (p *Payment) Details() Details {
	return Details{
		Token:        p.Token,
		Variant:      p.Variant,
		Description:  p.Description,
		Total:        p.Total,
		Currency:     p.Currency,
		BillingEmail: p.BillingEmail,
		SuccessURL:   p.SuccessURL,
		FailureURL:   p.FailureURL,
		ProcessURL:   p.ProcessURL,
	}
}

func (p *Payment) CurrentStatus() Status { return p.Status }

// ChangeStatus records a new status. The host does not police the lattice;
// callers check CanTransitionTo first.
func (p *Payment) ChangeStatus(status Status, message string) {
	p.Status = status
	p.Message = message
	p.UpdatedAt = time.Now()
}

// TransitionTo moves the payment along the lattice or fails.
func (p *Payment) TransitionTo(status Status, message string) error {
	if !CanTransitionTo(p.Status, status) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(p.Status)+" to "+string(status),
			errors.ErrInvalidStateTransition,
		)
	}
	p.ChangeStatus(status, message)
	return nil
}

func (p *Payment) ProviderTransactionID() string { return p.TransactionID }

func (p *Payment) SetProviderTransactionID(id string) {
	p.TransactionID = id
	p.UpdatedAt = time.Now()
}

func (p *Payment) Attr(key string, dst any) (bool, error) {
	raw, ok := p.Attrs[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode attr %q: %w", key, err)
	}
	return true, nil
}

func (p *Payment) SetAttr(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w %q: %v", errors.ErrAttributeStore, key, err)
	}
	if p.Attrs == nil {
		p.Attrs = make(map[string]json.RawMessage)
	}
	p.Attrs[key] = raw
	p.UpdatedAt = time.Now()
	return nil
}

func validateAmount(total int64, currency string) error {
	if total <= 0 {
		return errors.NewValidationError("total", "must be greater than 0")
	}
	if currency == "" {
		return errors.NewValidationError("currency", "cannot be empty")
	}
	if len(currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return nil
}
