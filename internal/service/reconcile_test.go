package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/cassiomorais/pagoscl/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_SettlesWaitingPayments(t *testing.T) {
	f := setupPaymentService(t, nil)

	var waiting []string
	for i := 0; i < 5; i++ {
		p := testutil.NewWaitingPayment(t, payment.VariantDummy, 1000, "dummy_txn")
		f.repo.AddPayment(p)
		waiting = append(waiting, p.Token)
	}
	confirmed := testutil.NewConfirmedPayment(t, payment.VariantDummy, 1000, "dummy_txn")
	f.repo.AddPayment(confirmed)

	report, err := f.svc.Reconcile(context.Background(), nil, 2)
	require.NoError(t, err)

	assert.Equal(t, ReconcileReport{Checked: 5, Changed: 5}, report)
	for _, token := range waiting {
		assert.Equal(t, payment.StatusConfirmed, f.repo.Stored(token).Status)
	}
	assert.Equal(t, 5.0, counterSum(t, f.reg, "test_reconcile_payments_total",
		map[string]string{"result": "changed"}))
}

func TestReconcile_FailuresAreCounted(t *testing.T) {
	f := setupPaymentService(t, nil)
	p := testutil.NewWaitingPayment(t, payment.VariantDummy, 1000, "")
	f.repo.AddPayment(p)

	report, err := f.svc.Reconcile(context.Background(), nil, 4)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 1, Failed: 1}, report)
	assert.Equal(t, payment.StatusWaiting, f.repo.Stored(p.Token).Status)
	assert.Equal(t, 1.0, counterSum(t, f.reg, "test_reconcile_payments_total",
		map[string]string{"variant": "dummy", "result": "failed"}))
}

func TestReconcile_LabelsByPaymentVariant(t *testing.T) {
	f := setupPaymentService(t, nil)
	f.repo.AddPayment(testutil.NewWaitingPayment(t, payment.VariantDummy, 1000, "dummy_txn"))
	f.repo.AddPayment(testutil.NewWaitingPayment(t, payment.VariantDummy, 1000, ""))

	variant := payment.VariantDummy
	_, err := f.svc.Reconcile(context.Background(), &variant, 1)
	require.NoError(t, err)

	assert.Equal(t, 2.0, counterSum(t, f.reg, "test_reconcile_payments_total",
		map[string]string{"variant": "dummy"}))
	assert.Zero(t, counterSum(t, f.reg, "test_reconcile_payments_total",
		map[string]string{"variant": "all"}))
}

func TestReconcile_FiltersByVariant(t *testing.T) {
	f := setupPaymentService(t, nil)
	f.repo.AddPayment(testutil.NewWaitingPayment(t, payment.VariantDummy, 1000, "dummy_txn"))

	variant := payment.VariantKhipu
	report, err := f.svc.Reconcile(context.Background(), &variant, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Checked)
}

func TestReconcile_RefreshesEachPaymentOnce(t *testing.T) {
	f := setupPaymentService(t, nil)
	for i := 0; i < reconcilePageSize+10; i++ {
		f.repo.AddPayment(testutil.NewWaitingPayment(t, payment.VariantDummy, 1000, "dummy_txn"))
	}

	var (
		mu     sync.Mutex
		loaded = map[string]int{}
	)
	f.repo.GetByTokenForUpdateFunc = func(ctx context.Context, token string) (*payment.Payment, error) {
		mu.Lock()
		loaded[token]++
		mu.Unlock()
		if p := f.repo.Stored(token); p != nil {
			return p, nil
		}
		return nil, errors.New("not found")
	}

	report, err := f.svc.Reconcile(context.Background(), nil, 8)
	require.NoError(t, err)
	assert.Equal(t, reconcilePageSize+10, report.Checked)
	for token, n := range loaded {
		assert.Equal(t, 1, n, token)
	}
}

func TestReconcile_ListError(t *testing.T) {
	f := setupPaymentService(t, nil)
	f.repo.ListFunc = func(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
		return nil, errors.New("db down")
	}

	_, err := f.svc.Reconcile(context.Background(), nil, 1)
	assert.EqualError(t, err, "db down")
}
