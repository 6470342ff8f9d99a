package providers

import (
	"context"
	"net/http"

	"github.com/cassiomorais/pagoscl/internal/domain/payment"
)

// Attribute bag keys shared by every gateway.
const (
	AttrExtraData      = "extra_data"
	AttrRefundRequest  = "refund_request"
	AttrRefundResponse = "refund_response"
	AttrStatusResponse = "status_response"
)

// SessionOutcome tags the result of CreateSession.
type SessionOutcome int

const (
	// SessionCreated means the caller must redirect the user to RedirectURL.
	SessionCreated SessionOutcome = iota + 1
	// SessionFailed means the gateway refused or could not be reached.
	SessionFailed
	// SessionExisting means the record already had a session; nothing was sent.
	SessionExisting
)

func (o SessionOutcome) String() string {
	switch o {
	case SessionCreated:
		return "created"
	case SessionFailed:
		return "failed"
	case SessionExisting:
		return "existing"
	default:
		return "unknown"
	}
}

// SessionResult is what CreateSession hands back to the host.
type SessionResult struct {
	Outcome     SessionOutcome
	RedirectURL string
	Reason      string
}

// RedirectRequired reports whether the caller has to send the user to the gateway.
func (r SessionResult) RedirectRequired() bool {
	return r.Outcome == SessionCreated && r.RedirectURL != ""
}

// Created builds a successful session result.
func Created(redirectURL string) SessionResult {
	return SessionResult{Outcome: SessionCreated, RedirectURL: redirectURL}
}

// Failed builds a failed session result.
func Failed(reason string) SessionResult {
	return SessionResult{Outcome: SessionFailed, Reason: reason}
}

// Ack is the body gateways expect back from a notification.
type Ack struct {
	Status string `json:"status"`
}

// OK is the acknowledgment every handled notification answers with.
var OK = Ack{Status: "ok"}

// Provider is the interface that external payment gateways implement.
type Provider interface {
	// Name returns the variant the provider serves.
	Name() string
	// CreateSession opens a hosted payment page for the record. A SessionFailed
	// result is always accompanied by a non-nil error.
	CreateSession(ctx context.Context, rec payment.Record) (SessionResult, error)
	// HandleNotification processes an inbound gateway callback for the record.
	HandleNotification(ctx context.Context, rec payment.Record, r *http.Request) (Ack, error)
	// RefreshStatus asks the gateway for the final status and returns the raw payload.
	RefreshStatus(ctx context.Context, rec payment.Record) (map[string]any, error)
	// Refund reverses a confirmed payment. A zero amount refunds the total.
	Refund(ctx context.Context, rec payment.Record, amount int64) (int64, error)
	// Capture is part of the host contract; no supported gateway implements it.
	Capture(ctx context.Context, rec payment.Record, amount int64) (int64, error)
	// Release is part of the host contract; no supported gateway implements it.
	Release(ctx context.Context, rec payment.Record) error
}
