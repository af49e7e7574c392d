package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopflow-backend/internal/cart"
	"github.com/angelmondragon/shopflow-backend/internal/orders"
	"github.com/angelmondragon/shopflow-backend/internal/payments"
	"github.com/angelmondragon/shopflow-backend/internal/shipping"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
)

type cartStore interface {
	Load(ctx context.Context, owner cart.Owner) (cart.Cart, error)
	Clear(ctx context.Context, owner cart.Owner) error
}

type shippingQuoter interface {
	Quote(ctx context.Context, dest shipping.Destination) (shipping.Quote, error)
	SaveInfo(ctx context.Context, session string, info orders.ShippingInfo) error
}

type paymentInitiator interface {
	Initiate(ctx context.Context, in payments.InitiateInput) (*payments.Result, error)
}

// Service places orders from the shopper's cart.
type Service interface {
	Execute(ctx context.Context, owner cart.Owner, input CheckoutInput) (*payments.Result, error)
	RetryPayment(ctx context.Context, owner cart.Owner, orderID uuid.UUID) (*payments.Result, error)
}

// CheckoutInput captures the shopper's shipping and payment selections.
type CheckoutInput struct {
	Shipping      orders.ShippingInfo
	PlaceID       string
	PaymentMethod enums.PaymentMethod
}

type service struct {
	carts    cartStore
	shipping shippingQuoter
	orders   orders.Service
	payments paymentInitiator
	logg     *logger.Logger
}

// NewService builds the checkout service.
func NewService(
	carts cartStore,
	quoter shippingQuoter,
	ordersSvc orders.Service,
	channel paymentInitiator,
	logg *logger.Logger,
) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if quoter == nil {
		return nil, fmt.Errorf("shipping quoter required")
	}
	if ordersSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if channel == nil {
		return nil, fmt.Errorf("payment channel required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		carts:    carts,
		shipping: quoter,
		orders:   ordersSvc,
		payments: channel,
		logg:     logg,
	}, nil
}

// Execute snapshots the cart into an order and runs the payment step. The
// cart is cleared only once an order with a usable id exists.
func (s *service) Execute(ctx context.Context, owner cart.Owner, input CheckoutInput) (*payments.Result, error) {
	if !owner.Authenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to place an order")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
	if err := validateShipping(input.Shipping); err != nil {
		return nil, err
	}

	ctx = s.logg.WithUserID(ctx, owner.UserID.String())
	snapshot, err := s.carts.Load(ctx, owner)
	if err != nil {
		return nil, err
	}
	snapshot = snapshot.Clone()
	if err := validateLines(snapshot.Items); err != nil {
		return nil, err
	}

	quote, err := s.shipping.Quote(ctx, shipping.Destination{
		Latitude:   input.Shipping.Latitude,
		Longitude:  input.Shipping.Longitude,
		PlaceID:    input.PlaceID,
		DistanceKm: input.Shipping.DistanceKm,
	})
	if err != nil {
		return nil, err
	}
	info := input.Shipping
	info.DistanceKm = quote.DistanceKm

	order, err := s.orders.Create(ctx, orders.CreateInput{
		OwnerID:       *owner.UserID,
		Lines:         orderLines(snapshot.Items),
		Shipping:      info,
		PaymentMethod: input.PaymentMethod,
		ShippingFee:   quote.Fee,
	})
	if err != nil {
		return nil, err
	}
	if order == nil || order.ID == uuid.Nil {
		s.logg.Error(ctx, "checkout.order_without_id", fmt.Errorf("order create returned no identifiable order"))
		return nil, pkgerrors.New(pkgerrors.CodeInconsistent, "order could not be confirmed; your cart was kept")
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	if err := s.carts.Clear(ctx, owner); err != nil {
		s.logg.Error(ctx, "checkout.cart_clear_failed", err)
	}
	if err := s.shipping.SaveInfo(ctx, owner.StateSession(), info); err != nil {
		s.logg.Warn(ctx, "checkout.shipping_info_not_saved: "+err.Error())
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_method": string(order.PaymentMethod),
		"total_amount":   order.TotalAmount,
		"shipping_fee":   order.ShippingFee,
		"fee_source":     quote.Source,
	})
	s.logg.Info(logCtx, "checkout.order_placed")

	result, err := s.payments.Initiate(ctx, payments.InitiateInput{
		Order:   order,
		Session: owner.StateSession(),
		Payer:   payments.Payer{Name: info.RecipientName, Phone: info.Phone},
	})
	if err != nil {
		return &payments.Result{Order: order}, paymentStepError(err, order.ID)
	}
	return result, nil
}

// RetryPayment starts a fresh QR attempt for one of the owner's orders that
// is still awaiting payment.
func (s *service) RetryPayment(ctx context.Context, owner cart.Owner, orderID uuid.UUID) (*payments.Result, error) {
	if !owner.Authenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to pay for an order")
	}
	order, err := s.orders.GetForOwner(ctx, *owner.UserID, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != enums.PaymentMethodQR {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid by QR")
	}
	return s.payments.Initiate(ctx, payments.InitiateInput{
		Order:   order,
		Session: owner.StateSession(),
		Payer:   payments.Payer{Name: order.RecipientName, Phone: order.Phone},
	})
}

// paymentStepError keeps the placed order discoverable when only the payment
// step failed; the shopper retries against the order, not the cart.
func paymentStepError(err error, orderID uuid.UUID) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment could not be started")
	}
	return pkgerrors.Wrap(typed.Code(), err, typed.Message()).WithDetails(map[string]any{
		"order_id": orderID,
	})
}
