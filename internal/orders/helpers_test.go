package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopflow-backend/pkg/db"
	"github.com/angelmondragon/shopflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopflow-backend/pkg/db/models"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	"github.com/angelmondragon/shopflow-backend/pkg/outbox"
)

type fixture struct {
	svc    Service
	conn   *gorm.DB
	events *outbox.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	events := outbox.NewRepository(conn)
	svc, err := NewService(NewRepository(conn), db.FromConn(conn), outbox.NewService(events, logger.Nop()), logger.Nop())
	require.NoError(t, err)
	return fixture{svc: svc, conn: conn, events: events}
}

func (f fixture) eventTypes(t *testing.T, orderID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	rows, err := f.events.ListForAggregate(context.Background(), enums.AggregateOrder, orderID)
	require.NoError(t, err)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func sampleInput(owner uuid.UUID) CreateInput {
	return CreateInput{
		OwnerID: owner,
		Lines: []Line{
			{ProductID: uuid.New(), Name: "Coffee beans", Quantity: 2, UnitPrice: 100000},
			{ProductID: uuid.New(), Name: "Filter", Quantity: 1, UnitPrice: 50000},
		},
		Shipping: ShippingInfo{
			RecipientName: "Lan Nguyen",
			Phone:         "0901234567",
			Address:       "12 Le Loi, District 1",
		},
		PaymentMethod: enums.PaymentMethodCOD,
		ShippingFee:   25000,
	}
}

func placeOrder(t *testing.T, f fixture) *Order {
	t.Helper()
	order, err := f.svc.Create(context.Background(), sampleInput(uuid.New()))
	require.NoError(t, err)
	return order
}

func reload(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Order {
	t.Helper()
	var row models.Order
	require.NoError(t, conn.Preload("Details").First(&row, "id = ?", id).Error)
	return row
}
