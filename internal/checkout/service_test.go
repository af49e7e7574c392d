package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopflow-backend/internal/cart"
	"github.com/angelmondragon/shopflow-backend/internal/localstate"
	"github.com/angelmondragon/shopflow-backend/internal/orders"
	"github.com/angelmondragon/shopflow-backend/internal/payments"
	"github.com/angelmondragon/shopflow-backend/internal/shipping"
	"github.com/angelmondragon/shopflow-backend/pkg/config"
	"github.com/angelmondragon/shopflow-backend/pkg/db"
	"github.com/angelmondragon/shopflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	"github.com/angelmondragon/shopflow-backend/pkg/maps"
	"github.com/angelmondragon/shopflow-backend/pkg/outbox"
	"github.com/angelmondragon/shopflow-backend/pkg/pricing"
)

type stubCarts struct {
	carts   map[uuid.UUID]cart.Cart
	cleared int
}

func (s *stubCarts) Load(_ context.Context, owner cart.Owner) (cart.Cart, error) {
	return s.carts[*owner.UserID], nil
}

func (s *stubCarts) Clear(_ context.Context, owner cart.Owner) error {
	s.cleared++
	delete(s.carts, *owner.UserID)
	return nil
}

type stubRouter struct {
	km  float64
	err error
}

func (r stubRouter) ComputeRoute(context.Context, maps.LatLng, maps.LatLng) (*maps.Route, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &maps.Route{DistanceKm: r.km, DurationMinutes: 20}, nil
}

type stubChannel struct {
	calls []payments.InitiateInput
	err   error
}

func (c *stubChannel) Initiate(_ context.Context, in payments.InitiateInput) (*payments.Result, error) {
	c.calls = append(c.calls, in)
	if c.err != nil {
		return nil, c.err
	}
	pending := in.Order.PaymentMethod == enums.PaymentMethodQR
	return &payments.Result{Order: in.Order, PendingConfirmation: pending}, nil
}

// stubOrders lets a test replace Create while keeping the real service underneath.
type stubOrders struct {
	orders.Service
	create func(context.Context, orders.CreateInput) (*orders.Order, error)
}

func (s stubOrders) Create(ctx context.Context, in orders.CreateInput) (*orders.Order, error) {
	if s.create != nil {
		return s.create(ctx, in)
	}
	return s.Service.Create(ctx, in)
}

type fixture struct {
	svc     Service
	carts   *stubCarts
	channel *stubChannel
	orders  orders.Service
	local   *localstate.MemoryStore
	owner   cart.Owner
}

type fixtureOptions struct {
	router shipping.Router
	create func(context.Context, orders.CreateInput) (*orders.Order, error)
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	ordersSvc, err := orders.NewService(
		orders.NewRepository(conn),
		db.FromConn(conn),
		outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		logger.Nop(),
	)
	require.NoError(t, err)

	tiers, err := pricing.ParseTiers("5:15000,10:25000,20:35000,30:50000")
	require.NoError(t, err)
	engine, err := pricing.NewEngine(pricing.Table{Tiers: tiers, OverageUnit: 5000, DefaultFee: 30000})
	require.NoError(t, err)

	local := localstate.NewMemoryStore()
	router := opts.router
	if router == nil {
		router = stubRouter{km: 8}
	}
	quoter, err := shipping.NewService(shipping.Params{
		Origin: maps.LatLng{Latitude: 10.7769, Longitude: 106.7009},
		Router: router,
		Fees:   engine,
		Local:  local,
		Maps:   config.GoogleMapsConfig{RouteTimeout: time.Second, BreakerFailures: 5, BreakerCooldown: time.Minute},
	})
	require.NoError(t, err)

	userID := uuid.New()
	carts := &stubCarts{carts: map[uuid.UUID]cart.Cart{
		userID: {Items: []cart.Item{{
			ItemID:    uuid.New(),
			ProductID: uuid.New(),
			Name:      "Item A",
			Quantity:  1,
			UnitPrice: 200000,
			Available: true,
		}}},
	}}
	channel := &stubChannel{}

	svc, err := NewService(carts, quoter, stubOrders{Service: ordersSvc, create: opts.create}, channel, logger.Nop())
	require.NoError(t, err)
	return &fixture{
		svc:     svc,
		carts:   carts,
		channel: channel,
		orders:  ordersSvc,
		local:   local,
		owner:   cart.Owner{UserID: &userID, SessionID: "sess-1"},
	}
}

func ptr[T any](v T) *T { return &v }

func validInput(method enums.PaymentMethod) CheckoutInput {
	return CheckoutInput{
		Shipping: orders.ShippingInfo{
			RecipientName: "Lan Nguyen",
			Phone:         "0901234567",
			Address:       "12 Le Loi, District 1",
			Latitude:      ptr(10.80),
			Longitude:     ptr(106.65),
		},
		PaymentMethod: method,
	}
}

func TestExecuteCODHappyPath(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	result, err := f.svc.Execute(ctx, f.owner, validInput(enums.PaymentMethodCOD))
	require.NoError(t, err)
	require.NotNil(t, result.Order)

	assert.False(t, result.PendingConfirmation)
	assert.Equal(t, enums.PaymentStatusPending, result.Order.PaymentStatus)
	assert.Equal(t, enums.FulfillmentStatusPending, result.Order.FulfillmentStatus)
	assert.Equal(t, int64(25000), result.Order.ShippingFee)
	assert.Equal(t, int64(225000), result.Order.TotalAmount)
	require.NotNil(t, result.Order.DistanceKm)
	assert.Equal(t, 8.0, *result.Order.DistanceKm)

	assert.Equal(t, 1, f.carts.cleared)
	_, stillThere := f.carts.carts[*f.owner.UserID]
	assert.False(t, stillThere)

	require.Len(t, f.channel.calls, 1)
	assert.Equal(t, "sess-1", f.channel.calls[0].Session)
	assert.Equal(t, "Lan Nguyen", f.channel.calls[0].Payer.Name)

	var saved orders.ShippingInfo
	found, err := f.local.Load(ctx, "sess-1", localstate.KeyShippingInfo, &saved)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "12 Le Loi, District 1", saved.Address)
}

func TestExecuteQRReportsPendingConfirmation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})

	result, err := f.svc.Execute(context.Background(), f.owner, validInput(enums.PaymentMethodQR))
	require.NoError(t, err)
	assert.True(t, result.PendingConfirmation)
	assert.Equal(t, enums.PaymentMethodQR, f.channel.calls[0].Order.PaymentMethod)
}

func TestExecuteRouteFailureBillsDefaultFee(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{router: stubRouter{err: errors.New("routes down")}})

	result, err := f.svc.Execute(context.Background(), f.owner, validInput(enums.PaymentMethodCOD))
	require.NoError(t, err)
	assert.Equal(t, int64(30000), result.Order.ShippingFee)
	assert.Equal(t, int64(230000), result.Order.TotalAmount)
	assert.Nil(t, result.Order.DistanceKm)
}

func TestExecuteRequiresSignedInOwner(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})

	_, err := f.svc.Execute(context.Background(), cart.Owner{SessionID: "sess-1"}, validInput(enums.PaymentMethodCOD))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	assert.Zero(t, f.carts.cleared)
}

func TestExecuteRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*fixture, *CheckoutInput){
		"missing address": func(_ *fixture, in *CheckoutInput) { in.Shipping.Address = " " },
		"missing phone":   func(_ *fixture, in *CheckoutInput) { in.Shipping.Phone = "" },
		"unknown method":  func(_ *fixture, in *CheckoutInput) { in.PaymentMethod = "CARD" },
		"empty cart": func(f *fixture, _ *CheckoutInput) {
			f.carts.carts[*f.owner.UserID] = cart.Cart{}
		},
		"zero quantity line": func(f *fixture, _ *CheckoutInput) {
			c := f.carts.carts[*f.owner.UserID]
			c.Items[0].Quantity = 0
			f.carts.carts[*f.owner.UserID] = c
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, fixtureOptions{})
			in := validInput(enums.PaymentMethodCOD)
			mutate(f, &in)

			_, err := f.svc.Execute(context.Background(), f.owner, in)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
			assert.Zero(t, f.carts.cleared)
			assert.Empty(t, f.channel.calls)
		})
	}
}

func TestExecuteKeepsCartWhenOrderCreationFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{
		create: func(context.Context, orders.CreateInput) (*orders.Order, error) {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")
		},
	})

	_, err := f.svc.Execute(context.Background(), f.owner, validInput(enums.PaymentMethodCOD))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Zero(t, f.carts.cleared)
	assert.Len(t, f.carts.carts[*f.owner.UserID].Items, 1)
}

func TestExecuteKeepsCartWhenOrderHasNoID(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{
		create: func(context.Context, orders.CreateInput) (*orders.Order, error) {
			return &orders.Order{}, nil
		},
	})

	_, err := f.svc.Execute(context.Background(), f.owner, validInput(enums.PaymentMethodCOD))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInconsistent))
	assert.Zero(t, f.carts.cleared)
	assert.Empty(t, f.channel.calls)
}

func TestExecutePaymentFailureKeepsOrderReachable(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	f.channel.err = pkgerrors.New(pkgerrors.CodePaymentFailed, "provider refused the payment")

	result, err := f.svc.Execute(context.Background(), f.owner, validInput(enums.PaymentMethodQR))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentFailed))
	require.NotNil(t, result)
	require.NotNil(t, result.Order)

	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, result.Order.ID, details["order_id"])
	assert.Equal(t, 1, f.carts.cleared)
}

func TestRetryPayment(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	qr, err := f.svc.Execute(ctx, f.owner, validInput(enums.PaymentMethodQR))
	require.NoError(t, err)

	result, err := f.svc.RetryPayment(ctx, f.owner, qr.Order.ID)
	require.NoError(t, err)
	assert.True(t, result.PendingConfirmation)
	require.Len(t, f.channel.calls, 2)

	stranger := uuid.New()
	_, err = f.svc.RetryPayment(ctx, cart.Owner{UserID: &stranger}, qr.Order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.RetryPayment(ctx, cart.Owner{SessionID: "sess-1"}, qr.Order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestRetryPaymentRejectsCOD(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	cod, err := f.svc.Execute(ctx, f.owner, validInput(enums.PaymentMethodCOD))
	require.NoError(t, err)

	_, err = f.svc.RetryPayment(ctx, f.owner, cod.Order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}
