package flow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	domainErrors "github.com/cassiomorais/pagoscl/internal/domain/errors"
	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/cassiomorais/pagoscl/internal/providers"
	"github.com/cassiomorais/pagoscl/pkg/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "api-key"
	testSecret = "api-secret"
)

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection reset by flow")
}

// fakeFlow records the last signed request and checks its signature.
type fakeFlow struct {
	t      *testing.T
	calls  atomic.Int32
	last   url.Values
	path   string
	status int
	body   string
}

func (f *fakeFlow) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	assert.NoError(f.t, r.ParseForm())
	params := map[string]any{}
	for k := range r.Form {
		if k != "s" {
			params[k] = r.Form.Get(k)
		}
	}
	assert.True(f.t, signature.Verify(params, testSecret, r.Form.Get("s")), "request signature must verify")
	f.last = r.Form
	f.path = r.URL.Path
	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
	}
	_, _ = w.Write([]byte(f.body))
}

func newTestProvider(t *testing.T, fake *fakeFlow) *Provider {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return New(srv.URL, testKey, testSecret)
}

func newRecord(t *testing.T) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(payment.VariantFlow, "Orden #123", 5000, "CLP", "juan@example.com")
	require.NoError(t, err)
	p.SuccessURL = "https://shop.example.com/payments/" + p.Token + "/success"
	p.ProcessURL = "https://shop.example.com/payments/process/flow/" + p.Token
	return p
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, LiveURL, BaseURL("live"))
	assert.Equal(t, SandboxURL, BaseURL("sandbox"))
	assert.Equal(t, "http://localhost:9000/api", BaseURL("http://localhost:9000/api/"))
}

func TestCreateSession_Success(t *testing.T) {
	fake := &fakeFlow{t: t, body: `{"url":"https://sandbox.flow.cl/app/web/pay.php","token":"TK123","flowOrder":987}`}
	p := newTestProvider(t, fake)
	rec := newRecord(t)

	res, err := p.CreateSession(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, providers.SessionCreated, res.Outcome)
	assert.Equal(t, "https://sandbox.flow.cl/app/web/pay.php?token=TK123", res.RedirectURL)
	assert.Equal(t, payment.StatusWaiting, rec.Status)
	assert.Equal(t, "TK123", rec.TransactionID)

	assert.Equal(t, "/payment/create", fake.path)
	assert.Equal(t, testKey, fake.last.Get("apiKey"))
	assert.Equal(t, rec.Token, fake.last.Get("commerceOrder"))
	assert.Equal(t, "5000", fake.last.Get("amount"))
	assert.Equal(t, "9", fake.last.Get("paymentMethod"))
	assert.Equal(t, "CLP", fake.last.Get("currency"))
	assert.Equal(t, "juan@example.com", fake.last.Get("email"))
	assert.Equal(t, rec.ProcessURL, fake.last.Get("urlConfirmation"))

	var stored map[string]any
	ok, err := rec.Attr(AttrSessionRequest, &stored)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, stored, "s")

	var session sessionResponse
	ok, err = rec.Attr(AttrSessionResponse, &session)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(987), session.FlowOrder)
}

func TestCreateSession_ExtraDataCannotOverrideReserved(t *testing.T) {
	fake := &fakeFlow{t: t, body: `{"url":"https://flow.cl/pay","token":"TK","flowOrder":1}`}
	p := newTestProvider(t, fake)
	rec := newRecord(t)
	require.NoError(t, rec.SetAttr(providers.AttrExtraData, map[string]any{
		"amount":   1,
		"apiKey":   "other",
		"optional": "{\"rut\":\"9999999-9\"}",
	}))

	_, err := p.CreateSession(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "5000", fake.last.Get("amount"))
	assert.Equal(t, testKey, fake.last.Get("apiKey"))
	assert.Equal(t, "{\"rut\":\"9999999-9\"}", fake.last.Get("optional"))
}

func TestCreateSession_NestedExtraDataSentAsJSON(t *testing.T) {
	fake := &fakeFlow{t: t, body: `{"url":"https://flow.cl/pay","token":"TK","flowOrder":1}`}
	p := newTestProvider(t, fake)
	rec := newRecord(t)
	require.NoError(t, rec.SetAttr(providers.AttrExtraData, map[string]any{
		"optional": map[string]any{"rut": "9999999-9"},
	}))

	_, err := p.CreateSession(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, `{"rut":"9999999-9"}`, fake.last.Get("optional"))
}

func TestCreateSession_PaymentMethodOption(t *testing.T) {
	fake := &fakeFlow{t: t, body: `{"url":"https://flow.cl/pay","token":"TK","flowOrder":1}`}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	p := New(srv.URL, testKey, testSecret, WithPaymentMethod(1))

	_, err := p.CreateSession(context.Background(), newRecord(t))
	require.NoError(t, err)
	assert.Equal(t, "1", fake.last.Get("paymentMethod"))
}

func TestCreateSession_Existing(t *testing.T) {
	fake := &fakeFlow{t: t}
	p := newTestProvider(t, fake)
	rec := newRecord(t)
	rec.TransactionID = "TK-old"

	res, err := p.CreateSession(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, providers.SessionExisting, res.Outcome)
	assert.Equal(t, int32(0), fake.calls.Load())
	assert.Equal(t, payment.StatusCreated, rec.Status)
}

func TestCreateSession_TransportFailure(t *testing.T) {
	p := New("http://flow.invalid", testKey, testSecret,
		WithHTTPClient(&http.Client{Transport: failingTransport{}}))
	rec := newRecord(t)

	res, err := p.CreateSession(context.Background(), rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErrors.ErrPaymentCreation)
	assert.Contains(t, err.Error(), "connection reset by flow")
	assert.Equal(t, providers.SessionFailed, res.Outcome)
	assert.Equal(t, payment.StatusError, rec.Status)
	assert.Contains(t, rec.Message, "connection reset by flow")
	assert.Empty(t, rec.TransactionID)
}

func TestCreateSession_GatewayRejects(t *testing.T) {
	fake := &fakeFlow{t: t, status: http.StatusBadRequest, body: `{"code":108,"message":"invalid apiKey"}`}
	p := newTestProvider(t, fake)
	rec := newRecord(t)

	res, err := p.CreateSession(context.Background(), rec)
	assert.ErrorIs(t, err, domainErrors.ErrPaymentCreation)
	assert.Contains(t, err.Error(), "invalid apiKey")
	assert.Equal(t, providers.SessionFailed, res.Outcome)
	assert.Equal(t, payment.StatusError, rec.Status)
}

func TestRefreshStatus_Mapping(t *testing.T) {
	tests := []struct {
		body     string
		expected payment.Status
	}{
		{`{"flowOrder":1,"status":1}`, payment.StatusWaiting},
		{`{"flowOrder":1,"status":2}`, payment.StatusConfirmed},
		{`{"flowOrder":1,"status":3}`, payment.StatusRejected},
		{`{"flowOrder":1,"status":4}`, payment.StatusError},
		{`{"flowOrder":1,"status":99}`, payment.StatusWaiting},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			fake := &fakeFlow{t: t, body: tt.body}
			p := newTestProvider(t, fake)
			rec := newRecord(t)
			rec.TransactionID = "TK"
			rec.Status = payment.StatusWaiting

			remote, err := p.RefreshStatus(context.Background(), rec)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, rec.Status)
			assert.NotEmpty(t, remote)
			assert.Equal(t, "/payment/getStatus", fake.path)
			assert.Equal(t, "TK", fake.last.Get("token"))

			var stored map[string]any
			ok, _ := rec.Attr(providers.AttrStatusResponse, &stored)
			assert.True(t, ok)
		})
	}
}

func TestRefreshStatus_MissingTransaction(t *testing.T) {
	p := New(SandboxURL, testKey, testSecret)
	_, err := p.RefreshStatus(context.Background(), newRecord(t))
	assert.ErrorIs(t, err, domainErrors.ErrMissingTransactionID)
}

func TestRefreshStatus_TransportFailure(t *testing.T) {
	p := New("http://flow.invalid", testKey, testSecret,
		WithHTTPClient(&http.Client{Transport: failingTransport{}}))
	rec := newRecord(t)
	rec.TransactionID = "TK"
	rec.Status = payment.StatusWaiting

	_, err := p.RefreshStatus(context.Background(), rec)
	assert.ErrorIs(t, err, domainErrors.ErrGatewayRequest)
	assert.Equal(t, payment.StatusWaiting, rec.Status)
}

func TestHandleNotification(t *testing.T) {
	fake := &fakeFlow{t: t, body: `{"status":2}`}
	p := newTestProvider(t, fake)
	rec := newRecord(t)
	rec.TransactionID = "TK"
	rec.Status = payment.StatusWaiting

	req := httptest.NewRequest(http.MethodPost, "/payments/process/flow/"+rec.Token, strings.NewReader("token=TK"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ack, err := p.HandleNotification(context.Background(), rec, req)
	require.NoError(t, err)
	assert.Equal(t, providers.OK, ack)
	assert.Equal(t, payment.StatusConfirmed, rec.Status)
}

func TestHandleNotification_NotPending(t *testing.T) {
	fake := &fakeFlow{t: t, body: `{"status":2}`}
	p := newTestProvider(t, fake)
	rec := newRecord(t)
	rec.TransactionID = "TK"
	rec.Status = payment.StatusRefunded

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("token=TK"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ack, err := p.HandleNotification(context.Background(), rec, req)
	require.NoError(t, err)
	assert.Equal(t, providers.OK, ack)
	assert.Equal(t, int32(0), fake.calls.Load())
	assert.Equal(t, payment.StatusRefunded, rec.Status)
}

func TestHandleNotification_RefreshFailureStillAcks(t *testing.T) {
	fake := &fakeFlow{t: t, status: http.StatusInternalServerError, body: `{}`}
	p := newTestProvider(t, fake)
	rec := newRecord(t)
	rec.TransactionID = "TK"
	rec.Status = payment.StatusWaiting

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("token=TK"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ack, err := p.HandleNotification(context.Background(), rec, req)
	require.NoError(t, err)
	assert.Equal(t, providers.OK, ack)
	assert.Equal(t, payment.StatusWaiting, rec.Status)
}

func TestHandleNotification_MissingToken(t *testing.T) {
	p := New(SandboxURL, testKey, testSecret)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("other=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err := p.HandleNotification(context.Background(), newRecord(t), req)
	assert.ErrorIs(t, err, domainErrors.ErrMalformedNotification)
}

func confirmedRecord(t *testing.T) *payment.Payment {
	t.Helper()
	rec := newRecord(t)
	rec.TransactionID = "TK"
	rec.Status = payment.StatusConfirmed
	require.NoError(t, rec.SetAttr(AttrSessionResponse, sessionResponse{URL: "https://flow.cl/pay", Token: "TK", FlowOrder: 987}))
	return rec
}

func TestRefund_FullAmount(t *testing.T) {
	fake := &fakeFlow{t: t, body: `{"token":"RF1","flowRefundOrder":"555","status":"created","amount":5000}`}
	p := newTestProvider(t, fake)
	rec := confirmedRecord(t)

	refunded, err := p.Refund(context.Background(), rec, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), refunded)
	assert.Equal(t, payment.StatusRefunded, rec.Status)

	assert.Equal(t, "/refund/create", fake.path)
	assert.Equal(t, "5000", fake.last.Get("amount"))
	assert.Equal(t, "987", fake.last.Get("flowTrxId"))
	assert.Equal(t, rec.Token, fake.last.Get("refundCommerceOrder"))
	assert.Equal(t, "juan@example.com", fake.last.Get("receiverEmail"))

	var resp map[string]any
	ok, err := rec.Attr(providers.AttrRefundResponse, &resp)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "RF1", resp["token"])
}

func TestRefund_Partial(t *testing.T) {
	fake := &fakeFlow{t: t, body: `{"token":"RF1"}`}
	p := newTestProvider(t, fake)
	rec := confirmedRecord(t)

	refunded, err := p.Refund(context.Background(), rec, 1200)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), refunded)
	assert.Equal(t, "1200", fake.last.Get("amount"))
}

func TestRefund_NotConfirmed(t *testing.T) {
	fake := &fakeFlow{t: t}
	p := newTestProvider(t, fake)
	rec := newRecord(t)
	rec.Status = payment.StatusWaiting

	_, err := p.Refund(context.Background(), rec, 0)
	assert.ErrorIs(t, err, domainErrors.ErrRefundNotPermitted)
	assert.Equal(t, int32(0), fake.calls.Load())
	assert.Equal(t, payment.StatusWaiting, rec.Status)
}

func TestRefund_GatewayFailure(t *testing.T) {
	fake := &fakeFlow{t: t, status: http.StatusUnauthorized, body: `{"code":105}`}
	p := newTestProvider(t, fake)
	rec := confirmedRecord(t)

	_, err := p.Refund(context.Background(), rec, 0)
	assert.ErrorIs(t, err, domainErrors.ErrPaymentRefund)
	assert.Equal(t, payment.StatusConfirmed, rec.Status)
}

func TestRefund_UnknownFlowOrder(t *testing.T) {
	fake := &fakeFlow{t: t}
	p := newTestProvider(t, fake)
	rec := newRecord(t)
	rec.Status = payment.StatusConfirmed

	_, err := p.Refund(context.Background(), rec, 0)
	assert.ErrorIs(t, err, domainErrors.ErrPaymentRefund)
	assert.Equal(t, int32(0), fake.calls.Load())
}

func TestCaptureRelease_NotImplemented(t *testing.T) {
	p := New(SandboxURL, testKey, testSecret)
	rec := newRecord(t)

	_, err := p.Capture(context.Background(), rec, 100)
	assert.ErrorIs(t, err, domainErrors.ErrNotImplemented)
	assert.ErrorIs(t, p.Release(context.Background(), rec), domainErrors.ErrNotImplemented)
}
