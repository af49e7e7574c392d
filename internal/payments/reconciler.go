package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopflow-backend/internal/localstate"
	"github.com/angelmondragon/shopflow-backend/internal/orders"
	"github.com/angelmondragon/shopflow-backend/pkg/config"
	"github.com/angelmondragon/shopflow-backend/pkg/db/models"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	"github.com/angelmondragon/shopflow-backend/pkg/outbox"
	"github.com/angelmondragon/shopflow-backend/pkg/outbox/payloads"
)

// Sources label where a confirmation came from.
const (
	SourceReturn = "return"
	SourceCheck  = "check"
	SourceIPN    = "ipn"
	SourceSweep  = "sweep"
)

// Marker is the durable pending-payment record kept in the shopper's local state.
type Marker struct {
	OrderID               uuid.UUID `json:"order_id"`
	ProviderTransactionID string    `json:"provider_transaction_id"`
	Attempts              int       `json:"attempts"`
	CreatedAt             time.Time `json:"created_at"`
}

// CheckStatus is the user-facing state of a pending payment check.
type CheckStatus string

const (
	StatusNone    CheckStatus = "none"
	StatusPending CheckStatus = "pending"
	StatusPaid    CheckStatus = "paid"
	StatusFailed  CheckStatus = "failed"
)

// Failure reasons reported with StatusFailed.
const (
	ReasonDeclined        = "declined"
	ReasonBudgetExhausted = "retry_budget_exhausted"
	ReasonOrderClosed     = "order_closed"
	ReasonUnknownAttempt  = "unknown_attempt"
)

// CheckResult reports what one confirmation pass concluded.
type CheckResult struct {
	Status     CheckStatus `json:"status"`
	OrderID    *uuid.UUID  `json:"order_id,omitempty"`
	Attempts   int         `json:"attempts,omitempty"`
	ResultCode *int        `json:"result_code,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// Budget bounds how long a pending payment is chased.
type Budget struct {
	MaxAttempts    int
	MaxAge         time.Duration
	PollAttempts   int
	PollInterval   time.Duration
	TransactionTTL time.Duration
	SweepMinAge    time.Duration
	SweepBatchSize int
}

// BudgetFromConfig copies the reconciler settings.
func BudgetFromConfig(cfg config.ReconcilerConfig) Budget {
	return Budget{
		MaxAttempts:    cfg.MaxAttempts,
		MaxAge:         cfg.MaxAge,
		PollAttempts:   cfg.PollAttempts,
		PollInterval:   cfg.PollInterval,
		TransactionTTL: cfg.TransactionTTL,
		SweepMinAge:    cfg.SweepMinAge,
		SweepBatchSize: cfg.SweepBatchSize,
	}
}

type orderSettler interface {
	SetPaymentStatus(ctx context.Context, id uuid.UUID, next enums.PaymentStatus, change orders.Change) (*orders.Order, bool, error)
}

type outcomeRecorder interface {
	Observe(source, result string)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ReconcilerParams wires a Reconciler.
type ReconcilerParams struct {
	Orders       orderSettler
	Transactions TransactionRepository
	Tx           txRunner
	Outbox       outboxPublisher
	Provider     Provider
	Markers      localstate.Store
	Budget       Budget
	Metrics      outcomeRecorder
	Logger       *logger.Logger
	Now          func() time.Time
}

// Reconciler confirms pending QR payments and applies the outcome to the
// order exactly once, however many paths report it.
type Reconciler struct {
	orders   orderSettler
	txns     TransactionRepository
	tx       txRunner
	outbox   outboxPublisher
	provider Provider
	markers  localstate.Store
	budget   Budget
	metrics  outcomeRecorder
	logg     *logger.Logger
	now      func() time.Time
}

func NewReconciler(p ReconcilerParams) (*Reconciler, error) {
	switch {
	case p.Orders == nil:
		return nil, fmt.Errorf("orders service required")
	case p.Transactions == nil:
		return nil, fmt.Errorf("transaction repository required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case p.Provider == nil:
		return nil, fmt.Errorf("payment provider required")
	case p.Markers == nil:
		return nil, fmt.Errorf("marker store required")
	}
	r := &Reconciler{
		orders:   p.Orders,
		txns:     p.Transactions,
		tx:       p.Tx,
		outbox:   p.Outbox,
		provider: p.Provider,
		markers:  p.Markers,
		budget:   p.Budget,
		metrics:  p.Metrics,
		logg:     p.Logger,
		now:      p.Now,
	}
	if r.logg == nil {
		r.logg = logger.Nop()
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	if r.budget.MaxAttempts <= 0 {
		r.budget.MaxAttempts = 10
	}
	if r.budget.PollAttempts <= 0 {
		r.budget.PollAttempts = 1
	}
	if r.budget.SweepBatchSize <= 0 {
		r.budget.SweepBatchSize = 100
	}
	return r, nil
}

// Track persists the pending marker. It must run before the shopper is sent
// to the provider.
func (r *Reconciler) Track(ctx context.Context, session string, orderID uuid.UUID, providerTransactionID string) error {
	marker := Marker{
		OrderID:               orderID,
		ProviderTransactionID: providerTransactionID,
		CreatedAt:             r.now(),
	}
	if err := r.markers.Save(ctx, session, localstate.KeyPendingPayment, marker); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist pending payment marker")
	}
	return nil
}

// PendingMarker returns the session's marker, if any.
func (r *Reconciler) PendingMarker(ctx context.Context, session string) (*Marker, error) {
	var marker Marker
	found, err := r.markers.Load(ctx, session, localstate.KeyPendingPayment, &marker)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending payment marker")
	}
	if !found || marker.ProviderTransactionID == "" {
		return nil, nil
	}
	return &marker, nil
}

// CheckPending runs one confirmation pass for the session's marker. The
// marker is cleared only once a terminal answer has been applied or the
// budget is spent.
func (r *Reconciler) CheckPending(ctx context.Context, session string) (*CheckResult, error) {
	return r.checkPending(ctx, session, SourceCheck)
}

func (r *Reconciler) checkPending(ctx context.Context, session, source string) (*CheckResult, error) {
	marker, err := r.PendingMarker(ctx, session)
	if err != nil {
		return nil, err
	}
	if marker == nil {
		return &CheckResult{Status: StatusNone}, nil
	}
	marker.Attempts++
	orderID := marker.OrderID
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"order_id":                orderID.String(),
		"provider_transaction_id": marker.ProviderTransactionID,
		"attempt":                 marker.Attempts,
		"source":                  source,
	})

	result, err := r.Reconcile(logCtx, marker.ProviderTransactionID, source)
	switch {
	case err == nil:
	case indeterminate(err):
		r.logg.Warn(logCtx, "payment.confirm_indeterminate")
		result = &CheckResult{Status: StatusPending}
	case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		result = &CheckResult{Status: StatusFailed, Reason: ReasonOrderClosed}
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		r.logg.Warn(logCtx, "payment.marker_unknown_transaction")
		result = &CheckResult{Status: StatusFailed, Reason: ReasonUnknownAttempt}
	default:
		return nil, err
	}
	result.OrderID = &orderID
	result.Attempts = marker.Attempts

	if result.Status == StatusPending {
		if r.budgetExhausted(*marker) {
			if err := r.expire(logCtx, marker.ProviderTransactionID, source); err != nil {
				return nil, err
			}
			result.Status = StatusFailed
			result.Reason = ReasonBudgetExhausted
			r.logg.Warn(logCtx, "payment.retry_budget_exhausted")
		} else {
			if err := r.markers.Save(ctx, session, localstate.KeyPendingPayment, marker); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update pending payment marker")
			}
			return result, nil
		}
	}

	if err := r.markers.Delete(ctx, session, localstate.KeyPendingPayment); err != nil {
		r.logg.Error(logCtx, "payment.marker_clear_failed", err)
	}
	return result, nil
}

func (r *Reconciler) budgetExhausted(m Marker) bool {
	if m.Attempts >= r.budget.MaxAttempts {
		return true
	}
	return r.budget.MaxAge > 0 && !m.CreatedAt.IsZero() && r.now().Sub(m.CreatedAt) >= r.budget.MaxAge
}

// Poll repeats CheckPending at a fixed interval while the provider reports
// the payment as still in flight. It serves the redirect-return path.
func (r *Reconciler) Poll(ctx context.Context, session string) (*CheckResult, error) {
	interval := r.budget.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	backoff := retry.WithMaxRetries(uint64(r.budget.PollAttempts-1), retry.NewConstant(interval))

	var last *CheckResult
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := r.checkPending(ctx, session, SourceReturn)
		if err != nil {
			return err
		}
		last = res
		if res.Status == StatusPending {
			return retry.RetryableError(errStillPending)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStillPending) {
		return nil, err
	}
	return last, nil
}

var errStillPending = errors.New("payment still pending")

// indeterminate reports errors that say nothing about the payment itself:
// the provider was unreachable or answered with something unreadable.
func indeterminate(err error) bool {
	return pkgerrors.IsRetryable(err) || pkgerrors.IsCode(err, pkgerrors.CodeInconsistent)
}

// Reconcile asks the provider about one attempt and applies the answer.
func (r *Reconciler) Reconcile(ctx context.Context, providerTransactionID, source string) (*CheckResult, error) {
	txn, err := r.loadTransaction(ctx, providerTransactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status.IsTerminal() {
		return r.replayTerminal(ctx, txn, source)
	}
	conf, err := r.provider.Confirm(ctx, providerTransactionID)
	if err != nil {
		r.observe(source, "error")
		return nil, err
	}
	return r.apply(ctx, txn, conf, source)
}

// ApplyConfirmation applies an answer the provider pushed to us (IPN).
func (r *Reconciler) ApplyConfirmation(ctx context.Context, providerTransactionID string, conf *Confirmation, source string) (*CheckResult, error) {
	if conf == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "confirmation required")
	}
	txn, err := r.loadTransaction(ctx, providerTransactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status.IsTerminal() {
		return r.replayTerminal(ctx, txn, source)
	}
	return r.apply(ctx, txn, conf, source)
}

func (r *Reconciler) loadTransaction(ctx context.Context, providerTransactionID string) (*models.PaymentTransaction, error) {
	txn, err := r.txns.FindByProviderTransactionID(ctx, providerTransactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	return txn, nil
}

// replayTerminal answers for an attempt some other path already finalized.
// A succeeded attempt re-applies PAID so a crash between the order update
// and the marker clear heals itself.
func (r *Reconciler) replayTerminal(ctx context.Context, txn *models.PaymentTransaction, source string) (*CheckResult, error) {
	res := &CheckResult{OrderID: &txn.OrderID, ResultCode: txn.ResultCode}
	if txn.Status != enums.TransactionStatusSucceeded {
		res.Status = StatusFailed
		res.Reason = ReasonDeclined
		if txn.Status == enums.TransactionStatusExpired {
			res.Reason = ReasonBudgetExhausted
		}
		return res, nil
	}
	if _, _, err := r.orders.SetPaymentStatus(ctx, txn.OrderID, enums.PaymentStatusPaid, r.change(source)); err != nil {
		return nil, err
	}
	res.Status = StatusPaid
	r.observe(source, "duplicate")
	return res, nil
}

func (r *Reconciler) apply(ctx context.Context, txn *models.PaymentTransaction, conf *Confirmation, source string) (*CheckResult, error) {
	code := conf.ResultCode
	res := &CheckResult{OrderID: &txn.OrderID, ResultCode: &code}
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"order_id":    txn.OrderID.String(),
		"outcome":     conf.Outcome,
		"result_code": conf.ResultCode,
		"source":      source,
	})

	switch conf.Outcome {
	case OutcomePending:
		res.Status = StatusPending
		r.observe(source, string(OutcomePending))
		return res, nil

	case OutcomeSettled:
		// Order first: if we crash before finalizing, the attempt stays
		// PENDING and the sweep re-confirms it.
		_, changed, setErr := r.orders.SetPaymentStatus(ctx, txn.OrderID, enums.PaymentStatusPaid, r.change(source))
		if setErr != nil && !pkgerrors.IsCode(setErr, pkgerrors.CodeStateConflict) {
			return nil, setErr
		}
		if _, err := r.finalize(ctx, txn, enums.TransactionStatusSucceeded, conf); err != nil {
			return nil, err
		}
		if setErr != nil {
			r.logg.Error(logCtx, "payment.settled_on_closed_order", setErr)
			r.observe(source, "conflict")
			return nil, setErr
		}
		res.Status = StatusPaid
		if changed {
			r.observe(source, string(OutcomeSettled))
			r.logg.Info(logCtx, "payment.settled")
		} else {
			r.observe(source, "duplicate")
		}
		return res, nil

	default:
		if _, err := r.finalize(ctx, txn, enums.TransactionStatusFailed, conf); err != nil {
			return nil, err
		}
		res.Status = StatusFailed
		res.Reason = ReasonDeclined
		r.observe(source, string(OutcomeFailed))
		r.logg.Warn(logCtx, "payment.declined")
		return res, nil
	}
}

func (r *Reconciler) finalize(ctx context.Context, txn *models.PaymentTransaction, status enums.TransactionStatus, conf *Confirmation) (bool, error) {
	result := Finalization{Status: status}
	if conf != nil {
		code := conf.ResultCode
		result.ResultCode = &code
		result.Message = conf.Message
		result.ProviderOrderID = conf.ProviderOrderID
	}
	return finalizeAttempt(ctx, r.tx, r.txns, r.outbox, txn, result)
}

// expire ends an attempt nobody could confirm. The order keeps payment
// status PENDING so a fresh attempt can be started.
func (r *Reconciler) expire(ctx context.Context, providerTransactionID, source string) error {
	txn, err := r.loadTransaction(ctx, providerTransactionID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil
		}
		return err
	}
	if txn.Status.IsTerminal() {
		return nil
	}
	if _, err := finalizeAttempt(ctx, r.tx, r.txns, r.outbox, txn, Finalization{Status: enums.TransactionStatusExpired, Message: "retry budget exhausted"}); err != nil {
		return err
	}
	r.observe(source, "expired")
	return nil
}

// SweepReport summarizes one sweep pass.
type SweepReport struct {
	Checked int
	Settled int
	Failed  int
	Expired int
	Pending int
}

// Sweep confirms attempts that have been pending for at least SweepMinAge and
// expires those older than TransactionTTL that the provider still reports as
// unsettled. Per-attempt errors are collected; the pass continues.
func (r *Reconciler) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := r.now()
	rows, err := r.txns.ListPendingCreatedBefore(ctx, now.Add(-r.budget.SweepMinAge), r.budget.SweepBatchSize)
	if err != nil {
		return report, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending payment transactions")
	}

	var errs error
	for i := range rows {
		txn := rows[i]
		report.Checked++
		res, err := r.Reconcile(ctx, txn.ProviderTransactionID, SourceSweep)
		if err != nil && !indeterminate(err) {
			errs = multierr.Append(errs, fmt.Errorf("reconcile %s: %w", txn.ProviderTransactionID, err))
			continue
		}
		if err != nil {
			res = &CheckResult{Status: StatusPending}
		}
		switch res.Status {
		case StatusPaid:
			report.Settled++
		case StatusFailed:
			report.Failed++
		case StatusPending:
			if r.budget.TransactionTTL > 0 && now.Sub(txn.CreatedAt) >= r.budget.TransactionTTL {
				if err := r.expire(ctx, txn.ProviderTransactionID, SourceSweep); err != nil {
					errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", txn.ProviderTransactionID, err))
					continue
				}
				report.Expired++
				continue
			}
			report.Pending++
		}
	}

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"checked": report.Checked,
		"settled": report.Settled,
		"failed":  report.Failed,
		"expired": report.Expired,
		"pending": report.Pending,
	})
	r.logg.Info(logCtx, "payment.sweep_completed")
	return report, errs
}

func (r *Reconciler) change(source string) orders.Change {
	role := outbox.RoleReconciler
	if source == SourceIPN {
		role = outbox.RoleProvider
	}
	return orders.Change{Actor: &outbox.ActorRef{Role: role}, Reason: "payment confirmed via " + source}
}

func (r *Reconciler) observe(source, result string) {
	if r.metrics != nil {
		r.metrics.Observe(source, result)
	}
}

// finalizeAttempt writes the terminal status and its event together. A lost
// compare-and-set means another path already finalized the attempt.
func finalizeAttempt(ctx context.Context, runner txRunner, repo TransactionRepository, publisher outboxPublisher, txn *models.PaymentTransaction, result Finalization) (bool, error) {
	var won bool
	err := runner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		won, err = repo.WithTx(tx).Finalize(ctx, txn.ID, result)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize payment transaction")
		}
		if !won {
			return nil
		}
		return publisher.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFinalized,
			AggregateType: enums.AggregatePayment,
			AggregateID:   txn.ID,
			Actor:         &outbox.ActorRef{Role: outbox.RoleReconciler},
			Data: payloads.PaymentFinalizedEvent{
				OrderID:               txn.OrderID,
				TransactionID:         txn.ID,
				ProviderTransactionID: txn.ProviderTransactionID,
				Status:                result.Status,
				ResultCode:            result.ResultCode,
			},
		})
	})
	if err != nil {
		return false, err
	}
	return won, nil
}
