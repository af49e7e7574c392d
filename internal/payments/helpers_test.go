package payments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopflow-backend/internal/localstate"
	"github.com/angelmondragon/shopflow-backend/internal/orders"
	"github.com/angelmondragon/shopflow-backend/pkg/db"
	"github.com/angelmondragon/shopflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopflow-backend/pkg/db/models"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	"github.com/angelmondragon/shopflow-backend/pkg/outbox"
)

type fakeProvider struct {
	mu          sync.Mutex
	initiateErr error
	initiated   []InitiateRequest
	confirm     func(providerTransactionID string, call int) (*Confirmation, error)
	calls       map[string]int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{calls: map[string]int{}}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Initiate(_ context.Context, req InitiateRequest) (*Initiation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initiated = append(p.initiated, req)
	if p.initiateErr != nil {
		return nil, p.initiateErr
	}
	return &Initiation{PayURL: "https://pay.test/" + req.ProviderTransactionID}, nil
}

func (p *fakeProvider) Confirm(_ context.Context, id string) (*Confirmation, error) {
	p.mu.Lock()
	p.calls[id]++
	call := p.calls[id]
	fn := p.confirm
	p.mu.Unlock()
	if fn == nil {
		return &Confirmation{Outcome: OutcomePending, ResultCode: 1000}, nil
	}
	return fn(id, call)
}

func (p *fakeProvider) confirmCalls(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}

func settled() (*Confirmation, error) {
	return &Confirmation{Outcome: OutcomeSettled, ResultCode: 0, Message: "Successful.", ProviderOrderID: "4088878653"}, nil
}

type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) Observe(source, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, source+"/"+result)
}

type fixture struct {
	conn       *gorm.DB
	orders     orders.Service
	events     *outbox.Repository
	txns       TransactionRepository
	markers    *localstate.MemoryStore
	provider   *fakeProvider
	reconciler *Reconciler
	channel    *Channel
	metrics    *recorder
	now        time.Time
}

func newFixture(t *testing.T, budget Budget) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	runner := db.FromConn(conn)
	events := outbox.NewRepository(conn)
	publisher := outbox.NewService(events, logger.Nop())
	orderSvc, err := orders.NewService(orders.NewRepository(conn), runner, publisher, logger.Nop())
	require.NoError(t, err)

	f := &fixture{
		conn:     conn,
		orders:   orderSvc,
		events:   events,
		txns:     NewTransactionRepository(conn),
		markers:  localstate.NewMemoryStore(),
		provider: newFakeProvider(),
		metrics:  &recorder{},
		now:      time.Now().UTC(),
	}
	clock := func() time.Time { return f.now }

	f.reconciler, err = NewReconciler(ReconcilerParams{
		Orders:       orderSvc,
		Transactions: f.txns,
		Tx:           runner,
		Outbox:       publisher,
		Provider:     f.provider,
		Markers:      f.markers,
		Budget:       budget,
		Metrics:      f.metrics,
		Logger:       logger.Nop(),
		Now:          clock,
	})
	require.NoError(t, err)

	f.channel, err = NewChannel(ChannelParams{
		Transactions:   f.txns,
		Tx:             runner,
		Outbox:         publisher,
		Provider:       f.provider,
		Tracker:        f.reconciler,
		TransactionTTL: budget.TransactionTTL,
		Logger:         logger.Nop(),
		Now:            clock,
	})
	require.NoError(t, err)
	return f
}

func defaultBudget() Budget {
	return Budget{
		MaxAttempts:    3,
		MaxAge:         time.Hour,
		PollAttempts:   5,
		PollInterval:   time.Millisecond,
		TransactionTTL: 30 * time.Minute,
		SweepMinAge:    time.Minute,
		SweepBatchSize: 10,
	}
}

// placeOrder creates the reference order: one line of 200000 with an 8km
// delivery priced at 25000.
func (f *fixture) placeOrder(t *testing.T, method enums.PaymentMethod) *orders.Order {
	t.Helper()
	distance := 8.0
	order, err := f.orders.Create(context.Background(), orders.CreateInput{
		OwnerID: uuid.New(),
		Lines: []orders.Line{
			{ProductID: uuid.New(), Name: "Item A", Quantity: 1, UnitPrice: 200000},
		},
		Shipping: orders.ShippingInfo{
			RecipientName: "Minh Tran",
			Phone:         "0907654321",
			Address:       "45 Nguyen Hue, District 1",
			DistanceKm:    &distance,
		},
		PaymentMethod: method,
		ShippingFee:   25000,
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) transaction(t *testing.T, providerTransactionID string) *models.PaymentTransaction {
	t.Helper()
	txn, err := f.txns.FindByProviderTransactionID(context.Background(), providerTransactionID)
	require.NoError(t, err)
	return txn
}

func (f *fixture) order(t *testing.T, id uuid.UUID) *orders.Order {
	t.Helper()
	o, err := f.orders.GetByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (f *fixture) countEvents(t *testing.T, aggregate enums.OutboxAggregateType, id uuid.UUID, eventType enums.OutboxEventType) int {
	t.Helper()
	rows, err := f.events.ListForAggregate(context.Background(), aggregate, id)
	require.NoError(t, err)
	n := 0
	for _, row := range rows {
		if row.EventType == eventType {
			n++
		}
	}
	return n
}
