package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopflow-backend/internal/orders"
	"github.com/angelmondragon/shopflow-backend/pkg/db/models"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	"github.com/angelmondragon/shopflow-backend/pkg/outbox"
	"github.com/angelmondragon/shopflow-backend/pkg/outbox/payloads"
)

// Attempt describes the provider attempt the shopper should complete.
type Attempt struct {
	TransactionID         uuid.UUID `json:"transaction_id"`
	ProviderTransactionID string    `json:"provider_transaction_id"`
	PayURL                string    `json:"pay_url"`
	Amount                int64     `json:"amount"`
	Reused                bool      `json:"reused"`
	ExpiresAt             time.Time `json:"expires_at"`
}

// Result is the common shape both payment methods return.
type Result struct {
	Order               *orders.Order `json:"order"`
	PendingConfirmation bool          `json:"pending_confirmation"`
	Payment             *Attempt      `json:"payment,omitempty"`
}

// InitiateInput selects the order to pay and where to keep the pending marker.
type InitiateInput struct {
	Order   *orders.Order
	Session string
	Payer   Payer
}

type markerTracker interface {
	Track(ctx context.Context, session string, orderID uuid.UUID, providerTransactionID string) error
}

// ChannelParams wires a Channel.
type ChannelParams struct {
	Transactions   TransactionRepository
	Tx             txRunner
	Outbox         outboxPublisher
	Provider       Provider
	Tracker        markerTracker
	TransactionTTL time.Duration
	Logger         *logger.Logger
	Now            func() time.Time
}

// Channel resolves the payment step of checkout. COD finishes immediately;
// QR starts a provider attempt and leaves confirmation to the Reconciler.
type Channel struct {
	txns     TransactionRepository
	tx       txRunner
	outbox   outboxPublisher
	provider Provider
	tracker  markerTracker
	ttl      time.Duration
	logg     *logger.Logger
	now      func() time.Time
}

func NewChannel(p ChannelParams) (*Channel, error) {
	switch {
	case p.Transactions == nil:
		return nil, fmt.Errorf("transaction repository required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case p.Tracker == nil:
		return nil, fmt.Errorf("marker tracker required")
	}
	c := &Channel{
		txns:     p.Transactions,
		tx:       p.Tx,
		outbox:   p.Outbox,
		provider: p.Provider,
		tracker:  p.Tracker,
		ttl:      p.TransactionTTL,
		logg:     p.Logger,
		now:      p.Now,
	}
	if c.logg == nil {
		c.logg = logger.Nop()
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	if c.ttl <= 0 {
		c.ttl = 30 * time.Minute
	}
	return c, nil
}

// Initiate runs the payment step for a freshly created or retried order.
func (c *Channel) Initiate(ctx context.Context, in InitiateInput) (*Result, error) {
	order := in.Order
	if order == nil || order.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	switch order.PaymentMethod {
	case enums.PaymentMethodCOD:
		return &Result{Order: order, PendingConfirmation: false}, nil
	case enums.PaymentMethodQR:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}

	if order.PaymentStatus != enums.PaymentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment")
	}
	if order.FulfillmentStatus == enums.FulfillmentStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order was cancelled")
	}
	if c.provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "QR payments are not configured")
	}
	if order.TotalAmount != order.SubtotalAmount+order.ShippingFee {
		return nil, pkgerrors.New(pkgerrors.CodeInconsistent, "order total does not include shipping")
	}

	attempt, err := c.startAttempt(ctx, order, in.Payer)
	if err != nil {
		return nil, err
	}
	if in.Session != "" {
		if err := c.tracker.Track(ctx, in.Session, order.ID, attempt.ProviderTransactionID); err != nil {
			// The server-side sweep and the IPN still confirm the attempt.
			c.logg.Error(c.logg.WithOrderID(ctx, order.ID.String()), "payment.marker_persist_failed", err)
		}
	}
	return &Result{Order: order, PendingConfirmation: true, Payment: attempt}, nil
}

func (c *Channel) startAttempt(ctx context.Context, order *orders.Order, payer Payer) (*Attempt, error) {
	now := c.now()
	txn := &models.PaymentTransaction{
		OrderID:               order.ID,
		Method:                enums.PaymentMethodQR,
		Provider:              c.provider.Name(),
		ProviderTransactionID: fmt.Sprintf("%s-%d", order.ID, now.UnixMilli()),
		RequestID:             uuid.NewString(),
		Amount:                order.TotalAmount,
		Status:                enums.TransactionStatusPending,
	}

	var existing *models.PaymentTransaction
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.txns.WithTx(tx)
		pending, err := repo.FindPendingByOrder(ctx, order.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending payment")
		}
		if pending != nil {
			if now.Sub(pending.CreatedAt) < c.ttl && pending.PayURL != nil && pending.Amount == order.TotalAmount {
				existing = pending
				return nil
			}
			if _, err := finalizeInTx(ctx, tx, repo, c.outbox, pending, Finalization{Status: enums.TransactionStatusExpired, Message: "superseded by a new attempt"}); err != nil {
				return err
			}
		}

		created, err := repo.Create(ctx, txn)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment transaction")
		}
		if !created {
			return pkgerrors.New(pkgerrors.CodeConflict, "another payment attempt is being started; retry")
		}
		return c.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentInitiated,
			AggregateType: enums.AggregatePayment,
			AggregateID:   txn.ID,
			Actor:         &outbox.ActorRef{UserID: &order.OwnerID, Role: outbox.RoleCustomer},
			Data: payloads.PaymentInitiatedEvent{
				OrderID:               order.ID,
				TransactionID:         txn.ID,
				ProviderTransactionID: txn.ProviderTransactionID,
				Amount:                txn.Amount,
			},
		})
	})
	if err != nil {
		return nil, asError(err, "start payment attempt")
	}
	if existing != nil {
		return &Attempt{
			TransactionID:         existing.ID,
			ProviderTransactionID: existing.ProviderTransactionID,
			PayURL:                *existing.PayURL,
			Amount:                existing.Amount,
			Reused:                true,
			ExpiresAt:             existing.CreatedAt.Add(c.ttl),
		}, nil
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"order_id":                order.ID.String(),
		"provider_transaction_id": txn.ProviderTransactionID,
		"amount":                  txn.Amount,
	})
	init, err := c.provider.Initiate(ctx, InitiateRequest{
		OrderID:               order.ID,
		ProviderTransactionID: txn.ProviderTransactionID,
		RequestID:             txn.RequestID,
		Amount:                txn.Amount,
		Description:           fmt.Sprintf("Payment for order %s", order.ID),
		Items:                 lineItems(order),
		Payer:                 payer,
	})
	if err != nil {
		result := Finalization{Status: enums.TransactionStatusFailed, Message: err.Error()}
		if _, ferr := finalizeAttempt(ctx, c.tx, c.txns, c.outbox, txn, result); ferr != nil {
			c.logg.Error(logCtx, "payment.attempt_finalize_failed", ferr)
		}
		c.logg.Error(logCtx, "payment.initiate_failed", err)
		return nil, asError(err, "initiate payment")
	}
	if err := c.txns.SetPayURL(ctx, txn.ID, init.PayURL); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store pay url")
	}
	c.logg.Info(logCtx, "payment.initiated")

	return &Attempt{
		TransactionID:         txn.ID,
		ProviderTransactionID: txn.ProviderTransactionID,
		PayURL:                init.PayURL,
		Amount:                txn.Amount,
		ExpiresAt:             txn.CreatedAt.Add(c.ttl),
	}, nil
}

// lineItems lists the order lines plus a shipping line so the provider page
// adds up to the charged amount.
func lineItems(order *orders.Order) []LineItem {
	items := make([]LineItem, 0, len(order.Details)+1)
	for _, d := range order.Details {
		item := LineItem{
			ID:        d.ProductID.String(),
			Name:      d.ProductName,
			Quantity:  d.Quantity,
			UnitPrice: d.UnitPrice,
			Total:     d.LineTotal,
		}
		if d.ImageURL != nil {
			item.ImageURL = *d.ImageURL
		}
		items = append(items, item)
	}
	if order.ShippingFee > 0 {
		items = append(items, LineItem{ID: "shipping", Name: "Shipping fee", Quantity: 1, UnitPrice: order.ShippingFee, Total: order.ShippingFee})
	}
	return items
}

func finalizeInTx(ctx context.Context, tx *gorm.DB, repo TransactionRepository, publisher outboxPublisher, txn *models.PaymentTransaction, result Finalization) (bool, error) {
	return finalizeAttempt(ctx, inTx{tx}, repo, publisher, txn, result)
}

// inTx runs fn on an already open transaction.
type inTx struct{ tx *gorm.DB }

func (t inTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(t.tx)
}

func asError(err error, msg string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
