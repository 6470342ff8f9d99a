// Package payku integrates the Payku redirect gateway.
//
// Transactions are created with the public token; status queries and refunds
// use the private token.
package payku

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
	ProductionURL = "https://app.payku.cl/api"
	SandboxURL    = "https://des.payku.cl/api"

	// DefaultPaymentCode lets the payer pick any method on the Payku page.
	DefaultPaymentCode = 99

	AttrSessionRequest  = "payku_session_request"
	AttrSessionResponse = "payku_session_response"

	defaultTimeout = 10 * time.Second
)

var reservedKeys = []string{
	"order",
	"urlreturn",
	"urlnotify",
	"subject",
	"amount",
	"payment",
	"currency",
}

type Provider struct {
	site         string
	publicToken  string
	privateToken string
	paymentCode  int
	expiry       time.Duration
	client       *http.Client
	logger       zerolog.Logger
}

type Option func(*Provider)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithPaymentCode restricts the payment method offered by Payku.
func WithPaymentCode(code int) Option {
	return func(p *Provider) { p.paymentCode = code }
}

// WithExpiry makes transactions expire d after creation.
func WithExpiry(d time.Duration) Option {
	return func(p *Provider) { p.expiry = d }
}

// SiteURL resolves "production" and "sandbox". Anything else is taken as a base URL.
func SiteURL(site string) string {
	switch site {
	case "production":
		return ProductionURL
	case "sandbox":
		return SandboxURL
	default:
		return strings.TrimRight(site, "/")
	}
}

// New creates a Payku provider.
func New(site, publicToken, privateToken string, opts ...Option) *Provider {
	p := &Provider{
		site:         SiteURL(site),
		publicToken:  publicToken,
		privateToken: privateToken,
		paymentCode:  DefaultPaymentCode,
		client:       providers.DefaultHTTPClient(defaultTimeout),
		logger:       zerolog.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.With().Str("provider", p.Name()).Logger()
	return p
}

func (p *Provider) Name() string { return string(payment.VariantPayku) }

type newTransaction struct {
	Email                string         `json:"email"`
	Order                string         `json:"order"`
	Subject              string         `json:"subject"`
	Amount               int64          `json:"amount"`
	Currency             string         `json:"currency"`
	Payment              int            `json:"payment"`
	Expired              string         `json:"expired,omitempty"`
	URLReturn            string         `json:"urlreturn"`
	URLNotify            string         `json:"urlnotify"`
	AdditionalParameters map[string]any `json:"additional_parameters,omitempty"`
}

type transactionResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
	URL    string `json:"url"`
}

func (p *Provider) CreateSession(ctx context.Context, rec payment.Record) (providers.SessionResult, error) {
	if rec.ProviderTransactionID() != "" {
		return providers.SessionResult{Outcome: providers.SessionExisting}, nil
	}
	d := rec.Details()

	extra, err := providers.ExtraData(rec, reservedKeys...)
	if err != nil {
		return providers.Failed(err.Error()), fmt.Errorf("%w: %v", domainErrors.ErrPaymentCreation, err)
	}
	trx := newTransaction{
		Email:                d.BillingEmail,
		Order:                d.Token,
		Subject:              d.Description,
		Amount:               d.Total,
		Currency:             d.Currency,
		Payment:              p.paymentCode,
		URLReturn:            d.SuccessURL,
		URLNotify:            d.ProcessURL,
		AdditionalParameters: extra,
	}
	if p.expiry > 0 {
		trx.Expired = time.Now().Add(p.expiry).Format("2006-01-02 15:04:05")
	}

	if err := rec.SetAttr(AttrSessionRequest, trx); err != nil {
		return providers.Failed(err.Error()), fmt.Errorf("%w: %w", domainErrors.ErrPaymentCreation, err)
	}

	var resp transactionResponse
	err = p.call(ctx, http.MethodPost, "/transaction", p.publicToken, trx, &resp)
	if err == nil && (resp.ID == "" || resp.URL == "") {
		err = fmt.Errorf("payku: response without id or url (status %q)", resp.Status)
	}
	if err != nil {
		p.logger.Error().Err(err).Str("token", d.Token).Msg("payment creation failed")
		rec.ChangeStatus(payment.StatusError, err.Error())
		return providers.Failed(err.Error()), fmt.Errorf("%w: %v", domainErrors.ErrPaymentCreation, err)
	}

	if err := rec.SetAttr(AttrSessionResponse, resp); err != nil {
		return providers.Failed(err.Error()), fmt.Errorf("%w: %w", domainErrors.ErrPaymentCreation, err)
	}
	rec.SetProviderTransactionID(resp.ID)
	rec.ChangeStatus(payment.StatusWaiting, "")

	p.logger.Info().Str("token", d.Token).Str("transaction_id", resp.ID).Msg("payment session created")
	return providers.Created(resp.URL), nil
}

func (p *Provider) HandleNotification(ctx context.Context, rec payment.Record, r *http.Request) (providers.Ack, error) {
	values, err := providers.NotificationValues(r)
	if err != nil {
		return providers.Ack{}, err
	}
	if _, err := providers.RequireField(values, "id"); err != nil {
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
	id := rec.ProviderTransactionID()
	if id == "" {
		return nil, domainErrors.ErrMissingTransactionID
	}

	remote := map[string]any{}
	if err := p.call(ctx, http.MethodGet, "/transaction/"+url.PathEscape(id), p.privateToken, nil, &remote); err != nil {
		return nil, err
	}
	if err := rec.SetAttr(providers.AttrStatusResponse, remote); err != nil {
		return nil, err
	}

	status := cast.ToString(remote["status"])
	switch status {
	case "success":
		providers.Transition(p.logger, rec, payment.StatusConfirmed, "")
	case "rejected":
		providers.Transition(p.logger, rec, payment.StatusRejected, "")
	}
	p.logger.Debug().Str("token", rec.Details().Token).Str("payku_status", status).Msg("status refreshed")
	return remote, nil
}

func (p *Provider) Refund(ctx context.Context, rec payment.Record, amount int64) (int64, error) {
	toRefund, err := providers.RefundAmount(rec, amount)
	if err != nil {
		return 0, err
	}
	d := rec.Details()

	body := map[string]any{
		"transaction_id": rec.ProviderTransactionID(),
		"order":          d.Token,
		"email":          d.BillingEmail,
		"amount":         toRefund,
		"urlnotify":      d.ProcessURL,
	}
	remote := map[string]any{}
	if err := p.call(ctx, http.MethodPost, "/refund", p.privateToken, body, &remote); err != nil {
		p.logger.Error().Err(err).Str("token", d.Token).Msg("refund failed")
		return 0, fmt.Errorf("%w: %v", domainErrors.ErrPaymentRefund, err)
	}

	if err := rec.SetAttr(providers.AttrRefundRequest, body); err != nil {
		return 0, err
	}
	if err := rec.SetAttr(providers.AttrRefundResponse, remote); err != nil {
		return 0, err
	}
	rec.ChangeStatus(payment.StatusRefunded, "")

	p.logger.Info().Str("token", d.Token).Int64("amount", toRefund).Msg("refund requested")
	return toRefund, nil
}

func (p *Provider) Capture(context.Context, payment.Record, int64) (int64, error) {
	return 0, domainErrors.ErrNotImplemented
}

func (p *Provider) Release(context.Context, payment.Record) error {
	return domainErrors.ErrNotImplemented
}

func (p *Provider) call(ctx context.Context, method, path, token string, body, dst any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("%w: encode request: %v", domainErrors.ErrGatewayRequest, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, p.site+path, &buf)
	if err != nil {
		return fmt.Errorf("%w: %v", domainErrors.ErrGatewayRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domainErrors.ErrGatewayRequest, err)
	}
	return providers.ReadJSON(p.Name(), resp, dst)
}

var _ providers.Provider = (*Provider)(nil)
