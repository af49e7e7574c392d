package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopflow-backend/pkg/db/models"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	"github.com/angelmondragon/shopflow-backend/pkg/outbox"
	"github.com/angelmondragon/shopflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/shopflow-backend/pkg/pagination"
)

// maxSetAttempts bounds how often a setter re-reads after losing a
// compare-and-set race before reporting a conflict.
const maxSetAttempts = 3

var errLostRace = errors.New("status changed concurrently")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Change describes who requested a status transition and why.
type Change struct {
	Actor  *outbox.ActorRef
	Reason string
}

// Service owns order creation and the fulfillment/payment state machine.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetForOwner(ctx context.Context, ownerID, id uuid.UUID) (*Order, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*ListResult, error)
	ListAll(ctx context.Context, filter AdminFilter, params pagination.Params) (*ListResult, error)
	SetFulfillmentStatus(ctx context.Context, id uuid.UUID, next enums.FulfillmentStatus, change Change) (*Order, bool, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, next enums.PaymentStatus, change Change) (*Order, bool, error)
	Delete(ctx context.Context, id uuid.UUID, change Change) error
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService builds the order lifecycle service.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, outbox: outbox, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*Order, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	record := &models.Order{
		OwnerID:           input.OwnerID,
		RecipientName:     strings.TrimSpace(input.Shipping.RecipientName),
		Phone:             strings.TrimSpace(input.Shipping.Phone),
		Address:           strings.TrimSpace(input.Shipping.Address),
		Note:              input.Shipping.Note,
		DistanceKm:        input.Shipping.DistanceKm,
		PaymentMethod:     input.PaymentMethod,
		FulfillmentStatus: enums.FulfillmentStatusPending,
		PaymentStatus:     enums.PaymentStatusPending,
		ShippingFee:       input.ShippingFee,
		Details:           make([]models.OrderDetail, 0, len(input.Lines)),
	}
	var subtotal int64
	for i, line := range input.Lines {
		lineTotal := line.UnitPrice * int64(line.Quantity)
		subtotal += lineTotal
		var image *string
		if line.ImageURL != nil {
			v := *line.ImageURL
			image = &v
		}
		record.Details = append(record.Details, models.OrderDetail{
			ProductID:   line.ProductID,
			ProductName: line.Name,
			ImageURL:    image,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   lineTotal,
			Position:    i,
		})
	}
	record.SubtotalAmount = subtotal
	record.TotalAmount = subtotal + input.ShippingFee

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		ownerID := input.OwnerID
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   record.ID,
			Actor:         &outbox.ActorRef{UserID: &ownerID, Role: outbox.RoleCustomer},
			Data:          payloads.OrderCreatedEvent{Order: snapshotOf(record)},
		})
	})
	if err != nil {
		return nil, asServiceError(err, "create order")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":       record.ID.String(),
		"payment_method": record.PaymentMethod,
		"total_amount":   record.TotalAmount,
	})
	s.logg.Info(logCtx, "order.created")

	out := fromModel(record)
	return &out, nil
}

func validateCreate(input CreateInput) error {
	if input.OwnerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "owner required")
	}
	if strings.TrimSpace(input.Shipping.Address) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address required")
	}
	if strings.TrimSpace(input.Shipping.RecipientName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient name required")
	}
	if strings.TrimSpace(input.Shipping.Phone) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "phone required")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one line")
	}
	if input.ShippingFee < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping fee must be non-negative")
	}
	for _, line := range input.Lines {
		if line.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "line product id required")
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive").
				WithDetails(map[string]any{"product_id": line.ProductID.String()})
		}
		if line.UnitPrice < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "line price must be non-negative").
				WithDetails(map[string]any{"product_id": line.ProductID.String()})
		}
	}
	return nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	record, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	out := fromModel(record)
	return &out, nil
}

func (s *service) GetForOwner(ctx context.Context, ownerID, id uuid.UUID) (*Order, error) {
	record, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if record.OwnerID != ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	out := fromModel(record)
	return &out, nil
}

func (s *service) ListByOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner required")
	}
	return s.list(ctx, AdminFilter{OwnerID: &ownerID}, params)
}

func (s *service) ListAll(ctx context.Context, filter AdminFilter, params pagination.Params) (*ListResult, error) {
	if filter.FulfillmentStatus != nil && !filter.FulfillmentStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid fulfillment status filter")
	}
	if filter.PaymentStatus != nil && !filter.PaymentStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status filter")
	}
	return s.list(ctx, filter, params)
}

func (s *service) list(ctx context.Context, filter AdminFilter, params pagination.Params) (*ListResult, error) {
	after, err := params.After()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filter, after, params.Fetch())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	rows, next := pagination.Trim(rows, params, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	result := &ListResult{Orders: make([]Order, 0, len(rows)), NextCursor: next}
	for i := range rows {
		result.Orders = append(result.Orders, fromModel(&rows[i]))
	}
	return result, nil
}

// SetFulfillmentStatus moves the order one legal step along the fulfillment
// axis. Re-applying the current status succeeds without side effects.
func (s *service) SetFulfillmentStatus(ctx context.Context, id uuid.UUID, next enums.FulfillmentStatus, change Change) (*Order, bool, error) {
	if !next.IsValid() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "invalid fulfillment status")
	}
	return s.setStatus(ctx, id, change, enums.EventOrderFulfillmentStatusChanged, func(ctx context.Context, repo Repository, record *models.Order) (string, bool, error) {
		from := record.FulfillmentStatus
		if from == next {
			return string(from), false, nil
		}
		if !CanTransitionFulfillment(from, next) {
			return string(from), false, pkgerrors.New(pkgerrors.CodeStateConflict, "fulfillment transition not allowed").
				WithDetails(map[string]any{"from": from, "to": next})
		}
		won, err := repo.CompareAndSetFulfillmentStatus(ctx, record.ID, from, next)
		if err != nil {
			return string(from), false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update fulfillment status")
		}
		if !won {
			return string(from), false, errLostRace
		}
		record.FulfillmentStatus = next
		return string(from), true, nil
	}, string(next))
}

// SetPaymentStatus is the single settlement entry point shared by the
// reconciler and the admin console.
func (s *service) SetPaymentStatus(ctx context.Context, id uuid.UUID, next enums.PaymentStatus, change Change) (*Order, bool, error) {
	if !next.IsValid() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}
	return s.setStatus(ctx, id, change, enums.EventOrderPaymentStatusChanged, func(ctx context.Context, repo Repository, record *models.Order) (string, bool, error) {
		from := record.PaymentStatus
		if from == next {
			return string(from), false, nil
		}
		if !CanTransitionPayment(from, next) {
			return string(from), false, pkgerrors.New(pkgerrors.CodeStateConflict, "payment transition not allowed").
				WithDetails(map[string]any{"from": from, "to": next})
		}
		won, err := repo.CompareAndSetPaymentStatus(ctx, record.ID, from, next)
		if err != nil {
			return string(from), false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
		}
		if !won {
			return string(from), false, errLostRace
		}
		record.PaymentStatus = next
		return string(from), true, nil
	}, string(next))
}

type transitionFunc func(ctx context.Context, repo Repository, record *models.Order) (from string, changed bool, err error)

func (s *service) setStatus(ctx context.Context, id uuid.UUID, change Change, eventType enums.OutboxEventType, apply transitionFunc, target string) (*Order, bool, error) {
	if id == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	for attempt := 1; ; attempt++ {
		var (
			record  *models.Order
			from    string
			changed bool
		)
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			var err error
			record, err = s.load(ctx, repo, id)
			if err != nil {
				return err
			}
			from, changed, err = apply(ctx, repo, record)
			if err != nil || !changed {
				return err
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     eventType,
				AggregateType: enums.AggregateOrder,
				AggregateID:   id,
				Actor:         change.Actor,
				Data: payloads.OrderStatusChangedEvent{
					OrderID: id,
					From:    from,
					To:      target,
					Reason:  change.Reason,
				},
			})
		})
		if errors.Is(err, errLostRace) {
			if attempt < maxSetAttempts {
				continue
			}
			return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "order status changed concurrently; retry")
		}
		if err != nil {
			return nil, false, asServiceError(err, "update order status")
		}

		if changed {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"order_id": id.String(),
				"event":    eventType,
				"from":     from,
				"to":       target,
				"reason":   change.Reason,
			})
			s.logg.Info(logCtx, "order.status_changed")
		}
		out := fromModel(record)
		return &out, changed, nil
	}
}

// Delete hard-deletes the order and leaves a tombstone event carrying the
// last known snapshot.
func (s *service) Delete(ctx context.Context, id uuid.UUID, change Change) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		deleted, err := repo.Delete(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order")
		}
		if !deleted {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDeleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   id,
			Actor:         change.Actor,
			Data: payloads.OrderDeletedEvent{
				Order:     snapshotOf(record),
				DeletedAt: time.Now().UTC(),
			},
		})
	})
	if err != nil {
		return asServiceError(err, "delete order")
	}
	s.logg.Warn(s.logg.WithOrderID(ctx, id.String()), "order.deleted")
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.Order, error) {
	record, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return record, nil
}

func asServiceError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
