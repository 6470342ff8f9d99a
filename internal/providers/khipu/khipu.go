// Package khipu integrates the Khipu bank transfer gateway through its v3 API.
package khipu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/pagoscl/internal/domain/errors"
	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/cassiomorais/pagoscl/internal/providers"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"
)

const (
	DefaultEndpoint = "https://payment-api.khipu.com"

	AttrSessionRequest  = "khipu_session_request"
	AttrSessionResponse = "khipu_session_response"

	defaultTimeout = 5 * time.Second
)

var reservedKeys = []string{"amount", "subject", "currency"}

// status_detail values that end a payment as rejected.
var rejectedDetails = map[string]bool{
	"rejected-by-payer": true,
	"reversed":          true,
	"marked-as-abuse":   true,
}

type Provider struct {
	endpoint string
	apiKey   string
	bankID   string
	client   *http.Client
	logger   zerolog.Logger
}

type Option func(*Provider)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithBankID preselects the payer's bank on the Khipu page.
func WithBankID(id string) Option {
	return func(p *Provider) { p.bankID = id }
}

// New creates a Khipu provider. An empty endpoint selects DefaultEndpoint.
func New(endpoint, apiKey string, opts ...Option) *Provider {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	p := &Provider{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   providers.DefaultHTTPClient(defaultTimeout),
		logger:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.With().Str("provider", p.Name()).Logger()
	return p
}

func (p *Provider) Name() string { return string(payment.VariantKhipu) }

type sessionResponse struct {
	PaymentID             string `json:"payment_id"`
	PaymentURL            string `json:"payment_url"`
	SimplifiedTransferURL string `json:"simplified_transfer_url,omitempty"`
	TransferURL           string `json:"transfer_url,omitempty"`
	AppURL                string `json:"app_url,omitempty"`
	ReadyForTerminal      bool   `json:"ready_for_terminal"`
}

func (p *Provider) CreateSession(ctx context.Context, rec payment.Record) (providers.SessionResult, error) {
	if rec.ProviderTransactionID() != "" {
		return providers.SessionResult{Outcome: providers.SessionExisting}, nil
	}
	d := rec.Details()

	body := map[string]any{
		"transaction_id": d.Token,
		"return_url":     d.SuccessURL,
		"notify_url":     d.ProcessURL,
		"subject":        d.Description,
		"amount":         d.Total,
		"currency":       d.Currency,
	}
	if d.FailureURL != "" {
		body["cancel_url"] = d.FailureURL
	}
	if d.BillingEmail != "" {
		body["payer_email"] = d.BillingEmail
	}
	if p.bankID != "" {
		body["bank_id"] = p.bankID
	}
	extra, err := providers.ExtraData(rec, reservedKeys...)
	if err != nil {
		return providers.Failed(err.Error()), fmt.Errorf("%w: %v", domainErrors.ErrPaymentCreation, err)
	}
	for k, v := range extra {
		body[k] = v
	}

	if err := rec.SetAttr(AttrSessionRequest, body); err != nil {
		return providers.Failed(err.Error()), fmt.Errorf("%w: %w", domainErrors.ErrPaymentCreation, err)
	}

	var resp sessionResponse
	err = p.call(ctx, http.MethodPost, "/v3/payments", body, &resp)
	if err == nil && (resp.PaymentID == "" || resp.PaymentURL == "") {
		err = fmt.Errorf("khipu: response without payment_id or payment_url")
	}
	if err != nil {
		p.logger.Error().Err(err).Str("token", d.Token).Msg("payment creation failed")
		rec.ChangeStatus(payment.StatusError, err.Error())
		return providers.Failed(err.Error()), fmt.Errorf("%w: %v", domainErrors.ErrPaymentCreation, err)
	}

	if err := rec.SetAttr(AttrSessionResponse, resp); err != nil {
		return providers.Failed(err.Error()), fmt.Errorf("%w: %w", domainErrors.ErrPaymentCreation, err)
	}
	rec.SetProviderTransactionID(resp.PaymentID)
	rec.ChangeStatus(payment.StatusWaiting, "")

	p.logger.Info().Str("token", d.Token).Str("payment_id", resp.PaymentID).Msg("payment session created")
	return providers.Created(resp.PaymentURL), nil
}

func (p *Provider) HandleNotification(ctx context.Context, rec payment.Record, r *http.Request) (providers.Ack, error) {
	values, err := providers.NotificationValues(r)
	if err != nil {
		return providers.Ack{}, err
	}
	if _, err := providers.RequireField(values, "transaction_id", "payment_id"); err != nil {
		return providers.Ack{}, err
	}

	if rec.CurrentStatus().IsPending() {
		if _, err := p.RefreshStatus(ctx, rec); err != nil {
			p.logger.Error().Err(err).Str("token", rec.Details().Token).Msg("status refresh after notification failed")
		}
	}
	return providers.OK, nil
}

func (p *Provider) RefreshStatus(ctx context.Context, rec payment.Record) (map[string]any, error) {
	paymentID := rec.ProviderTransactionID()
	if paymentID == "" {
		return nil, domainErrors.ErrMissingTransactionID
	}

	remote := map[string]any{}
	if err := p.call(ctx, http.MethodGet, "/v3/payments/"+url.PathEscape(paymentID), nil, &remote); err != nil {
		return nil, err
	}
	if err := rec.SetAttr(providers.AttrStatusResponse, remote); err != nil {
		return nil, err
	}

	status := cast.ToString(remote["status"])
	detail := cast.ToString(remote["status_detail"])
	switch {
	case status == "done" && detail == "normal":
		providers.Transition(p.logger, rec, payment.StatusConfirmed, "")
	case rejectedDetails[detail]:
		providers.Transition(p.logger, rec, payment.StatusRejected, detail)
	}
	p.logger.Debug().Str("token", rec.Details().Token).Str("khipu_status", status).Str("status_detail", detail).Msg("status refreshed")
	return remote, nil
}

func (p *Provider) Refund(ctx context.Context, rec payment.Record, amount int64) (int64, error) {
	toRefund, err := providers.RefundAmount(rec, amount)
	if err != nil {
		return 0, err
	}
	paymentID := rec.ProviderTransactionID()
	if paymentID == "" {
		return 0, fmt.Errorf("%w: %w", domainErrors.ErrPaymentRefund, domainErrors.ErrMissingTransactionID)
	}

	body := map[string]any{"amount": toRefund}
	remote := map[string]any{}
	path := "/v3/payments/" + url.PathEscape(paymentID) + "/refunds"
	if err := p.call(ctx, http.MethodPost, path, body, &remote); err != nil {
		p.logger.Error().Err(err).Str("token", rec.Details().Token).Msg("refund failed")
		return 0, fmt.Errorf("%w: %v", domainErrors.ErrPaymentRefund, err)
	}

	if err := rec.SetAttr(providers.AttrRefundRequest, body); err != nil {
		return 0, err
	}
	if err := rec.SetAttr(providers.AttrRefundResponse, remote); err != nil {
		return 0, err
	}
	rec.ChangeStatus(payment.StatusRefunded, "")

	p.logger.Info().Str("token", rec.Details().Token).Int64("amount", toRefund).Msg("refund requested")
	return toRefund, nil
}

func (p *Provider) Capture(context.Context, payment.Record, int64) (int64, error) {
	return 0, domainErrors.ErrNotImplemented
}

func (p *Provider) Release(context.Context, payment.Record) error {
	return domainErrors.ErrNotImplemented
}

func (p *Provider) call(ctx context.Context, method, path string, body, dst any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("%w: encode request: %v", domainErrors.ErrGatewayRequest, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, p.endpoint+path, &buf)
	if err != nil {
		return fmt.Errorf("%w: %v", domainErrors.ErrGatewayRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domainErrors.ErrGatewayRequest, err)
	}
	return providers.ReadJSON(p.Name(), resp, dst)
}

var _ providers.Provider = (*Provider)(nil)
