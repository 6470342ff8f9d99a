package payment_test

import (
	"testing"

	"github.com/cassiomorais/pagoscl/internal/domain/errors"
	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayment_Valid(t *testing.T) {
	p, err := payment.NewPayment(payment.VariantFlow, "Pago por Orden #123", 10000, "CLP", "juan.perez@example.com")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCreated, p.Status)
	assert.Equal(t, payment.VariantFlow, p.Variant)
	assert.Equal(t, int64(10000), p.Total)
	assert.Equal(t, "CLP", p.Currency)
	assert.Empty(t, p.TransactionID)
	assert.NotNil(t, p.Attrs)

	_, err = uuid.Parse(p.Token)
	assert.NoError(t, err, "token should be a UUID")
}

func TestNewPayment_InvalidAmount(t *testing.T) {
	_, err := payment.NewPayment(payment.VariantFlow, "x", -1000, "CLP", "")
	assert.ErrorIs(t, err, errors.ErrValidationFailed)
}

func TestNewPayment_ZeroAmount(t *testing.T) {
	_, err := payment.NewPayment(payment.VariantFlow, "x", 0, "CLP", "")
	assert.Error(t, err)
}

func TestNewPayment_EmptyCurrency(t *testing.T) {
	_, err := payment.NewPayment(payment.VariantKhipu, "x", 1000, "", "")
	assert.Error(t, err)
}

func TestNewPayment_InvalidCurrencyLength(t *testing.T) {
	_, err := payment.NewPayment(payment.VariantKhipu, "x", 1000, "CL", "")
	assert.Error(t, err)
}

func TestNewPayment_EmptyVariant(t *testing.T) {
	_, err := payment.NewPayment("", "x", 1000, "CLP", "")
	var ve *errors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "variant", ve.Field)
}

// --- State Machine Tests ---

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from     payment.Status
		to       payment.Status
		expected bool
	}{
		{payment.StatusCreated, payment.StatusWaiting, true},
		{payment.StatusCreated, payment.StatusError, true},
		{payment.StatusCreated, payment.StatusConfirmed, false},
		{payment.StatusWaiting, payment.StatusConfirmed, true},
		{payment.StatusWaiting, payment.StatusRejected, true},
		{payment.StatusWaiting, payment.StatusError, true},
		{payment.StatusWaiting, payment.StatusRefunded, false},
		{payment.StatusPreauth, payment.StatusConfirmed, true},
		{payment.StatusConfirmed, payment.StatusRefunded, true},
		{payment.StatusConfirmed, payment.StatusRejected, false},
		{payment.StatusRejected, payment.StatusConfirmed, false},
		{payment.StatusError, payment.StatusWaiting, false},
		{payment.StatusRefunded, payment.StatusConfirmed, false},
		{payment.Status("unknown"), payment.StatusWaiting, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, payment.CanTransitionTo(tt.from, tt.to))
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, payment.StatusRejected.IsTerminal())
	assert.True(t, payment.StatusError.IsTerminal())
	assert.True(t, payment.StatusRefunded.IsTerminal())
	assert.False(t, payment.StatusWaiting.IsTerminal())
	assert.False(t, payment.StatusConfirmed.IsTerminal())
}

func TestStatus_IsPending(t *testing.T) {
	assert.True(t, payment.StatusWaiting.IsPending())
	assert.True(t, payment.StatusPreauth.IsPending())
	assert.False(t, payment.StatusCreated.IsPending())
	assert.False(t, payment.StatusConfirmed.IsPending())
}

func TestTransitionTo_Invalid(t *testing.T) {
	p, err := payment.NewPayment(payment.VariantPayku, "x", 1000, "CLP", "")
	require.NoError(t, err)

	err = p.TransitionTo(payment.StatusRefunded, "")
	assert.ErrorIs(t, err, errors.ErrInvalidStateTransition)
	assert.Equal(t, payment.StatusCreated, p.Status)
}

func TestTransitionTo_FullLifecycle(t *testing.T) {
	p, err := payment.NewPayment(payment.VariantPayku, "x", 1000, "CLP", "")
	require.NoError(t, err)

	require.NoError(t, p.TransitionTo(payment.StatusWaiting, ""))
	require.NoError(t, p.TransitionTo(payment.StatusConfirmed, ""))
	require.NoError(t, p.TransitionTo(payment.StatusRefunded, "partial refund"))
	assert.Equal(t, payment.StatusRefunded, p.CurrentStatus())
	assert.Equal(t, "partial refund", p.Message)
}

// --- Record capability ---

func TestPayment_ImplementsRecord(t *testing.T) {
	var _ payment.Record = &payment.Payment{}
}

func TestPayment_Attrs(t *testing.T) {
	p, err := payment.NewPayment(payment.VariantFlow, "x", 1000, "CLP", "")
	require.NoError(t, err)

	require.NoError(t, p.SetAttr("flow_session_response", map[string]any{"token": "T1", "flowOrder": 42}))

	var got struct {
		Token     string `json:"token"`
		FlowOrder int64  `json:"flowOrder"`
	}
	ok, err := p.Attr("flow_session_response", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "T1", got.Token)
	assert.Equal(t, int64(42), got.FlowOrder)

	ok, err = p.Attr("missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPayment_SetAttr_Unencodable(t *testing.T) {
	p := &payment.Payment{}
	err := p.SetAttr("bad", make(chan int))
	assert.ErrorIs(t, err, errors.ErrAttributeStore)
}

func TestPayment_Attr_DecodeMismatch(t *testing.T) {
	p := &payment.Payment{}
	require.NoError(t, p.SetAttr("extra_data", "not an object"))

	var dst map[string]any
	ok, err := p.Attr("extra_data", &dst)
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestPayment_Details(t *testing.T) {
	p, err := payment.NewPayment(payment.VariantKhipu, "Orden 7", 2500, "CLP", "a@b.cl")
	require.NoError(t, err)
	p.SuccessURL = "https://shop.cl/payments/" + p.Token + "/success"
	p.ProcessURL = "https://shop.cl/payments/process/khipu/" + p.Token

	d := p.Details()
	assert.Equal(t, p.Token, d.Token)
	assert.Equal(t, int64(2500), d.Total)
	assert.Equal(t, "a@b.cl", d.BillingEmail)
	assert.Equal(t, p.SuccessURL, d.SuccessURL)
	assert.Equal(t, p.ProcessURL, d.ProcessURL)
}

func TestStatusChanged(t *testing.T) {
	p, err := payment.NewPayment(payment.VariantKhipu, "Orden 9", 2500, "CLP", "")
	require.NoError(t, err)
	p.ChangeStatus(payment.StatusError, "khipu: connection refused")

	e := payment.StatusChanged(p, "create_session", payment.StatusCreated)
	assert.Equal(t, p.Token, e.Token)
	assert.Equal(t, payment.EventStatusChanged, e.Type)
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.False(t, e.CreatedAt.IsZero())
	assert.Equal(t, map[string]any{
		"operation": "create_session",
		"from":      "created",
		"to":        "error",
		"message":   "khipu: connection refused",
	}, e.Data)
}
