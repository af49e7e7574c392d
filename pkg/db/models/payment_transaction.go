package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopflow-backend/pkg/enums"
)

// PaymentTransaction is one provider payment attempt against an order.
type PaymentTransaction struct {
	ID                    uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID               uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	Method                enums.PaymentMethod     `gorm:"column:method;type:text;not null"`
	Provider              string                  `gorm:"column:provider;not null"`
	ProviderTransactionID string                  `gorm:"column:provider_transaction_id;not null;uniqueIndex"`
	ProviderOrderID       *string                 `gorm:"column:provider_order_id"`
	RequestID             string                  `gorm:"column:request_id;not null"`
	PayURL                *string                 `gorm:"column:pay_url"`
	Amount                int64                   `gorm:"column:amount;not null"`
	Status                enums.TransactionStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	ResultCode            *int                    `gorm:"column:result_code"`
	Message               *string                 `gorm:"column:message"`
	FinalizedAt           *time.Time              `gorm:"column:finalized_at"`
	CreatedAt             time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *PaymentTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
