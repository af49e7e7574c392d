package orders

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/shopflow-backend/pkg/enums"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)
	return gormDB, mock
}

func TestCompareAndSetPaymentStatusTouchesOnlyPaymentColumn(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewRepository(gormDB)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET "payment_status"=$1,"updated_at"=$2 WHERE id = $3 AND payment_status = $4`)).
		WithArgs("PAID", sqlmock.AnyArg(), id.String(), "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := repo.CompareAndSetPaymentStatus(context.Background(), id, enums.PaymentStatusPending, enums.PaymentStatusPaid)
	require.NoError(t, err)
	assert.True(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareAndSetFulfillmentStatusReportsLostRace(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewRepository(gormDB)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET "fulfillment_status"=$1,"updated_at"=$2 WHERE id = $3 AND fulfillment_status = $4`)).
		WithArgs("CANCELLED", sqlmock.AnyArg(), id.String(), "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.CompareAndSetFulfillmentStatus(context.Background(), id, enums.FulfillmentStatusPending, enums.FulfillmentStatusCancelled)
	require.NoError(t, err)
	assert.False(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}
