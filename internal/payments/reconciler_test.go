package payments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopflow-backend/internal/orders"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
)

func startQR(t *testing.T, f *fixture, session string) (*orders.Order, string) {
	t.Helper()
	order := f.placeOrder(t, enums.PaymentMethodQR)
	res, err := f.channel.Initiate(context.Background(), InitiateInput{Order: order, Session: session})
	require.NoError(t, err)
	return order, res.Payment.ProviderTransactionID
}

func TestQRPaymentSuccess(t *testing.T) {
	f := newFixture(t, defaultBudget())
	order, providerTxnID := startQR(t, f, "sess")
	f.provider.confirm = func(string, int) (*Confirmation, error) { return settled() }
	ctx := context.Background()

	res, err := f.reconciler.CheckPending(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, res.Status)
	assert.Equal(t, order.ID, *res.OrderID)

	assert.Equal(t, enums.PaymentStatusPaid, f.order(t, order.ID).PaymentStatus)
	assert.Equal(t, enums.FulfillmentStatusPending, f.order(t, order.ID).FulfillmentStatus)
	txn := f.transaction(t, providerTxnID)
	assert.Equal(t, enums.TransactionStatusSucceeded, txn.Status)
	require.NotNil(t, txn.ProviderOrderID)
	assert.Equal(t, "4088878653", *txn.ProviderOrderID)

	marker, err := f.reconciler.PendingMarker(ctx, "sess")
	require.NoError(t, err)
	assert.Nil(t, marker)
	assert.Contains(t, f.metrics.seen, "check/settled")
}

func TestQRPaymentAbandoned(t *testing.T) {
	f := newFixture(t, defaultBudget())
	order, providerTxnID := startQR(t, f, "sess")
	ctx := context.Background()

	for i := 1; i < 3; i++ {
		res, err := f.reconciler.CheckPending(ctx, "sess")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, res.Status)
		assert.Equal(t, i, res.Attempts)
	}

	res, err := f.reconciler.CheckPending(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, ReasonBudgetExhausted, res.Reason)

	assert.Equal(t, enums.PaymentStatusPending, f.order(t, order.ID).PaymentStatus)
	assert.Equal(t, enums.TransactionStatusExpired, f.transaction(t, providerTxnID).Status)
	marker, err := f.reconciler.PendingMarker(ctx, "sess")
	require.NoError(t, err)
	assert.Nil(t, marker)

	none, err := f.reconciler.CheckPending(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, StatusNone, none.Status)
}

func TestMarkerAgeEndsBudget(t *testing.T) {
	f := newFixture(t, defaultBudget())
	startQR(t, f, "sess")
	f.now = f.now.Add(2 * time.Hour)

	res, err := f.reconciler.CheckPending(context.Background(), "sess")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, ReasonBudgetExhausted, res.Reason)
}

func TestNoDuplicateSettlement(t *testing.T) {
	f := newFixture(t, defaultBudget())
	order, providerTxnID := startQR(t, f, "sess")
	f.provider.confirm = func(string, int) (*Confirmation, error) { return settled() }
	ctx := context.Background()

	conf, _ := settled()
	ipn, err := f.reconciler.ApplyConfirmation(ctx, providerTxnID, conf, SourceIPN)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, ipn.Status)

	check, err := f.reconciler.CheckPending(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, check.Status)

	replay, err := f.reconciler.ApplyConfirmation(ctx, providerTxnID, conf, SourceIPN)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, replay.Status)

	txn := f.transaction(t, providerTxnID)
	assert.Equal(t, 1, f.countEvents(t, enums.AggregateOrder, order.ID, enums.EventOrderPaymentStatusChanged))
	assert.Equal(t, 1, f.countEvents(t, enums.AggregatePayment, txn.ID, enums.EventPaymentFinalized))
	assert.Zero(t, f.provider.confirmCalls(providerTxnID))
}

func TestConcurrentSettlementAppliesOnce(t *testing.T) {
	f := newFixture(t, defaultBudget())
	order, providerTxnID := startQR(t, f, "sess")
	f.provider.confirm = func(string, int) (*Confirmation, error) { return settled() }
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.reconciler.Reconcile(ctx, providerTxnID, SourceSweep)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	txn := f.transaction(t, providerTxnID)
	assert.Equal(t, enums.PaymentStatusPaid, f.order(t, order.ID).PaymentStatus)
	assert.Equal(t, 1, f.countEvents(t, enums.AggregateOrder, order.ID, enums.EventOrderPaymentStatusChanged))
	assert.Equal(t, 1, f.countEvents(t, enums.AggregatePayment, txn.ID, enums.EventPaymentFinalized))
}

func TestDeclinedPaymentKeepsOrderPending(t *testing.T) {
	f := newFixture(t, defaultBudget())
	order, providerTxnID := startQR(t, f, "sess")
	f.provider.confirm = func(string, int) (*Confirmation, error) {
		return &Confirmation{Outcome: OutcomeFailed, ResultCode: 1006, Message: "user declined"}, nil
	}

	res, err := f.reconciler.CheckPending(context.Background(), "sess")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, ReasonDeclined, res.Reason)
	assert.Equal(t, enums.PaymentStatusPending, f.order(t, order.ID).PaymentStatus)
	assert.Equal(t, enums.TransactionStatusFailed, f.transaction(t, providerTxnID).Status)
}

func TestProviderOutageCountsAsPending(t *testing.T) {
	f := newFixture(t, defaultBudget())
	startQR(t, f, "sess")
	f.provider.confirm = func(string, int) (*Confirmation, error) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "execute momo request")
	}

	res, err := f.reconciler.CheckPending(context.Background(), "sess")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
	marker, err := f.reconciler.PendingMarker(context.Background(), "sess")
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, 1, marker.Attempts)
}

func TestSettlementAfterAdminCancelledPayment(t *testing.T) {
	f := newFixture(t, defaultBudget())
	order, providerTxnID := startQR(t, f, "sess")
	ctx := context.Background()
	_, _, err := f.orders.SetPaymentStatus(ctx, order.ID, enums.PaymentStatusCanceled, orders.Change{Reason: "admin"})
	require.NoError(t, err)
	f.provider.confirm = func(string, int) (*Confirmation, error) { return settled() }

	res, err := f.reconciler.CheckPending(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, ReasonOrderClosed, res.Reason)
	assert.Equal(t, enums.TransactionStatusSucceeded, f.transaction(t, providerTxnID).Status)
	assert.Equal(t, enums.PaymentStatusCanceled, f.order(t, order.ID).PaymentStatus)
}

func TestTerminalReplayHealsOrder(t *testing.T) {
	f := newFixture(t, defaultBudget())
	order, providerTxnID := startQR(t, f, "sess")
	ctx := context.Background()
	code := 0
	_, err := f.txns.Finalize(ctx, f.transaction(t, providerTxnID).ID, Finalization{Status: enums.TransactionStatusSucceeded, ResultCode: &code})
	require.NoError(t, err)

	res, err := f.reconciler.CheckPending(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, res.Status)
	assert.Equal(t, enums.PaymentStatusPaid, f.order(t, order.ID).PaymentStatus)
}

func TestPollStopsOnSettlement(t *testing.T) {
	f := newFixture(t, defaultBudget())
	order, providerTxnID := startQR(t, f, "sess")
	f.provider.confirm = func(_ string, call int) (*Confirmation, error) {
		if call < 3 {
			return &Confirmation{Outcome: OutcomePending, ResultCode: 7000}, nil
		}
		return settled()
	}

	res, err := f.reconciler.Poll(context.Background(), "sess")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, res.Status)
	assert.Equal(t, 3, f.provider.confirmCalls(providerTxnID))
	assert.Equal(t, enums.PaymentStatusPaid, f.order(t, order.ID).PaymentStatus)
}

func TestPollGivesUpAfterPollAttempts(t *testing.T) {
	budget := defaultBudget()
	budget.MaxAttempts = 20
	budget.PollAttempts = 2
	f := newFixture(t, budget)
	_, providerTxnID := startQR(t, f, "sess")

	res, err := f.reconciler.Poll(context.Background(), "sess")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, 2, f.provider.confirmCalls(providerTxnID))
}

func TestSweepSettlesAndExpires(t *testing.T) {
	f := newFixture(t, defaultBudget())
	settledOrder, settledID := startQR(t, f, "a")
	staleOrder, staleID := startQR(t, f, "b")
	f.provider.confirm = func(id string, _ int) (*Confirmation, error) {
		if id == settledID {
			return settled()
		}
		return &Confirmation{Outcome: OutcomePending, ResultCode: 1000}, nil
	}
	f.now = f.now.Add(2 * time.Hour)

	report, err := f.reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, 1, report.Expired)

	assert.Equal(t, enums.PaymentStatusPaid, f.order(t, settledOrder.ID).PaymentStatus)
	assert.Equal(t, enums.PaymentStatusPending, f.order(t, staleOrder.ID).PaymentStatus)
	assert.Equal(t, enums.TransactionStatusExpired, f.transaction(t, staleID).Status)
	assert.Contains(t, f.metrics.seen, "sweep/expired")
}

func TestSweepIgnoresYoungAttempts(t *testing.T) {
	f := newFixture(t, defaultBudget())
	startQR(t, f, "a")

	report, err := f.reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
}
