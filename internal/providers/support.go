package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	domainErrors "github.com/cassiomorais/pagoscl/internal/domain/errors"
	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/cassiomorais/pagoscl/pkg/signature"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	maxErrorBody        = 4 << 10
	maxNotificationBody = 64 << 10
)

// DefaultHTTPClient returns a client with a fixed timeout whose transport
// propagates trace context to the gateway.
func DefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// ExtraData returns the caller-supplied extra fields stored on the record,
// without the keys the gateway payload reserves. The stored attribute is not modified.
func ExtraData(rec payment.Record, reserved ...string) (map[string]any, error) {
	data := map[string]any{}
	ok, err := rec.Attr(AttrExtraData, &data)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]any{}, nil
	}
	for _, key := range reserved {
		delete(data, key)
	}
	return data, nil
}

// Transition moves the record to status when the lattice allows it. Moves to
// the current status only refresh the message. It reports whether the status changed.
func Transition(logger zerolog.Logger, rec payment.Record, status payment.Status, message string) bool {
	current := rec.CurrentStatus()
	if current == status {
		if message != "" {
			rec.ChangeStatus(status, message)
		}
		return false
	}
	if !payment.CanTransitionTo(current, status) {
		logger.Warn().
			Str("token", rec.Details().Token).
			Str("from", string(current)).
			Str("to", string(status)).
			Msg("ignoring status transition outside the lattice")
		return false
	}
	rec.ChangeStatus(status, message)
	return true
}

// RefundAmount checks the refund preconditions and resolves the amount to refund.
func RefundAmount(rec payment.Record, amount int64) (int64, error) {
	if rec.CurrentStatus() != payment.StatusConfirmed {
		return 0, domainErrors.ErrRefundNotPermitted
	}
	total := rec.Details().Total
	switch {
	case amount < 0:
		return 0, domainErrors.NewValidationError("amount", "must not be negative")
	case amount == 0:
		return total, nil
	case amount > total:
		return 0, domainErrors.NewValidationError("amount", "must not exceed the payment total")
	}
	return amount, nil
}

// NotificationValues extracts the fields of an inbound notification. Form
// bodies and flat JSON objects are both accepted.
func NotificationValues(r *http.Request) (url.Values, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body map[string]any
		if err := json.NewDecoder(io.LimitReader(r.Body, maxNotificationBody)).Decode(&body); err != nil {
			return nil, fmt.Errorf("%w: %v", domainErrors.ErrMalformedNotification, err)
		}
		values := url.Values{}
		for k, v := range body {
			values.Set(k, signature.Value(v))
		}
		return values, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxNotificationBody)
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrMalformedNotification, err)
	}
	return r.Form, nil
}

// RequireField returns the first non-empty value among names.
func RequireField(values url.Values, names ...string) (string, error) {
	for _, name := range names {
		if v := values.Get(name); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s is missing", domainErrors.ErrMalformedNotification, names[0])
}

// ReadJSON decodes a 2xx gateway response into dst. Any other status is
// returned as a GatewayError carrying the start of the body. Every error
// matches ErrGatewayRequest.
func ReadJSON(provider string, resp *http.Response, dst any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domainErrors.NewGatewayError(provider, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", domainErrors.ErrGatewayRequest, provider, err)
	}
	return nil
}

// ToMap re-encodes a typed gateway payload as a generic map.
func ToMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
