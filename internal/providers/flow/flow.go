// Package flow integrates the Flow redirect gateway (flow.cl). Every request
// carries the merchant apiKey and an HMAC-SHA256 signature in the "s" field.
package flow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/pagoscl/internal/domain/errors"
	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/cassiomorais/pagoscl/internal/providers"
	"github.com/cassiomorais/pagoscl/pkg/signature"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"
)

const (
	LiveURL    = "https://www.flow.cl/api"
	SandboxURL = "https://sandbox.flow.cl/api"

	// DefaultPaymentMethod lets the payer choose any method Flow offers.
	DefaultPaymentMethod = 9

	AttrSessionRequest  = "flow_session_request"
	AttrSessionResponse = "flow_session_response"

	defaultTimeout = 5 * time.Second
)

// Status codes returned by payment/getStatus.
const (
	statusPending   = 1
	statusPaid      = 2
	statusRejected  = 3
	statusCancelled = 4
)

var reservedKeys = []string{
	"commerceOrder",
	"urlReturn",
	"urlConfirmation",
	"amount",
	"subject",
	"paymentMethod",
	"currency",
	"apiKey",
	"s",
}

// Provider talks to the Flow REST API.
type Provider struct {
	baseURL       string
	apiKey        string
	secret        string
	paymentMethod int
	client        *http.Client
	logger        zerolog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default 5s client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithLogger sets the provider logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithPaymentMethod sets the Flow payment method id sent on session creation.
func WithPaymentMethod(method int) Option {
	return func(p *Provider) { p.paymentMethod = method }
}

// BaseURL resolves "live" and "sandbox". Anything else is taken as a base URL.
func BaseURL(environment string) string {
	switch environment {
	case "live":
		return LiveURL
	case "sandbox":
		return SandboxURL
	default:
		return strings.TrimRight(environment, "/")
	}
}

// New creates a Flow provider for the given environment and credentials.
func New(environment, apiKey, secret string, opts ...Option) *Provider {
	p := &Provider{
		baseURL:       BaseURL(environment),
		apiKey:        apiKey,
		secret:        secret,
		paymentMethod: DefaultPaymentMethod,
		client:        providers.DefaultHTTPClient(defaultTimeout),
		logger:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.With().Str("provider", p.Name()).Logger()
	return p
}

func (p *Provider) Name() string { return string(payment.VariantFlow) }

type sessionResponse struct {
	URL       string `json:"url"`
	Token     string `json:"token"`
	FlowOrder int64  `json:"flowOrder"`
}

func (p *Provider) CreateSession(ctx context.Context, rec payment.Record) (providers.SessionResult, error) {
	if rec.ProviderTransactionID() != "" {
		return providers.SessionResult{Outcome: providers.SessionExisting}, nil
	}
	d := rec.Details()

	params := map[string]any{
		"apiKey":          p.apiKey,
		"commerceOrder":   d.Token,
		"urlReturn":       d.SuccessURL,
		"urlConfirmation": d.ProcessURL,
		"subject":         d.Description,
		"amount":          d.Total,
		"paymentMethod":   p.paymentMethod,
		"currency":        d.Currency,
	}
	if d.BillingEmail != "" {
		params["email"] = d.BillingEmail
	}
	extra, err := providers.ExtraData(rec, reservedKeys...)
	if err != nil {
		return providers.Failed(err.Error()), fmt.Errorf("%w: %v", domainErrors.ErrPaymentCreation, err)
	}
	for k, v := range extra {
		params[k] = v
	}

	if err := rec.SetAttr(AttrSessionRequest, params); err != nil {
		return providers.Failed(err.Error()), fmt.Errorf("%w: %w", domainErrors.ErrPaymentCreation, err)
	}

	var resp sessionResponse
	err = p.post(ctx, "/payment/create", params, &resp)
	if err == nil && (resp.URL == "" || resp.Token == "") {
		err = fmt.Errorf("flow: response without url or token")
	}
	if err != nil {
		p.logger.Error().Err(err).Str("token", d.Token).Msg("payment creation failed")
		rec.ChangeStatus(payment.StatusError, err.Error())
		return providers.Failed(err.Error()), fmt.Errorf("%w: %v", domainErrors.ErrPaymentCreation, err)
	}

	if err := rec.SetAttr(AttrSessionResponse, resp); err != nil {
		return providers.Failed(err.Error()), fmt.Errorf("%w: %w", domainErrors.ErrPaymentCreation, err)
	}
	rec.SetProviderTransactionID(resp.Token)
	rec.ChangeStatus(payment.StatusWaiting, "")

	p.logger.Info().Str("token", d.Token).Int64("flow_order", resp.FlowOrder).Msg("payment session created")
	return providers.Created(resp.URL + "?token=" + url.QueryEscape(resp.Token)), nil
}

func (p *Provider) HandleNotification(ctx context.Context, rec payment.Record, r *http.Request) (providers.Ack, error) {
	values, err := providers.NotificationValues(r)
	if err != nil {
		return providers.Ack{}, err
	}
	if _, err := providers.RequireField(values, "token"); err != nil {
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
	txID := rec.ProviderTransactionID()
	if txID == "" {
		return nil, domainErrors.ErrMissingTransactionID
	}

	params := map[string]any{
		"apiKey": p.apiKey,
		"token":  txID,
	}
	remote := map[string]any{}
	if err := p.get(ctx, "/payment/getStatus", params, &remote); err != nil {
		return nil, err
	}
	if err := rec.SetAttr(providers.AttrStatusResponse, remote); err != nil {
		return nil, err
	}

	code := cast.ToInt(remote["status"])
	switch code {
	case statusPaid:
		providers.Transition(p.logger, rec, payment.StatusConfirmed, "")
	case statusRejected:
		providers.Transition(p.logger, rec, payment.StatusRejected, "")
	case statusCancelled:
		providers.Transition(p.logger, rec, payment.StatusError, "")
	}
	p.logger.Debug().Str("token", rec.Details().Token).Int("flow_status", code).Msg("status refreshed")
	return remote, nil
}

func (p *Provider) Refund(ctx context.Context, rec payment.Record, amount int64) (int64, error) {
	toRefund, err := providers.RefundAmount(rec, amount)
	if err != nil {
		return 0, err
	}
	d := rec.Details()

	var session sessionResponse
	ok, err := rec.Attr(AttrSessionResponse, &session)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domainErrors.ErrPaymentRefund, err)
	}
	if !ok || session.FlowOrder == 0 {
		return 0, fmt.Errorf("%w: flow order of payment %s is unknown", domainErrors.ErrPaymentRefund, d.Token)
	}

	params := map[string]any{
		"apiKey":              p.apiKey,
		"refundCommerceOrder": d.Token,
		"receiverEmail":       d.BillingEmail,
		"amount":              toRefund,
		"urlCallBack":         d.ProcessURL,
		"commerceTrxId":       d.Token,
		"flowTrxId":           session.FlowOrder,
	}
	remote := map[string]any{}
	if err := p.post(ctx, "/refund/create", params, &remote); err != nil {
		p.logger.Error().Err(err).Str("token", d.Token).Msg("refund failed")
		return 0, fmt.Errorf("%w: %v", domainErrors.ErrPaymentRefund, err)
	}

	if err := rec.SetAttr(providers.AttrRefundRequest, params); err != nil {
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

// signed encodes params with their signature appended as "s". The input map
// is not modified.
func (p *Provider) signed(params map[string]any) url.Values {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, signature.Value(v))
	}
	values.Set("s", signature.Sign(params, p.secret))
	return values
}

func (p *Provider) post(ctx context.Context, path string, params map[string]any, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, strings.NewReader(p.signed(params).Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", domainErrors.ErrGatewayRequest, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.do(req, dst)
}

func (p *Provider) get(ctx context.Context, path string, params map[string]any, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+p.signed(params).Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domainErrors.ErrGatewayRequest, err)
	}
	return p.do(req, dst)
}

func (p *Provider) do(req *http.Request, dst any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domainErrors.ErrGatewayRequest, err)
	}
	return providers.ReadJSON(p.Name(), resp, dst)
}

var _ providers.Provider = (*Provider)(nil)
