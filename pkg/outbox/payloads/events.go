package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopflow-backend/pkg/enums"
)

// OrderLine is a frozen order line as carried on events.
type OrderLine struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	UnitPrice   int64     `json:"unit_price"`
	LineTotal   int64     `json:"line_total"`
}

// OrderSnapshot is the full order state, used for creation and tombstones.
type OrderSnapshot struct {
	OrderID           uuid.UUID               `json:"order_id"`
	OwnerID           uuid.UUID               `json:"owner_id"`
	RecipientName     string                  `json:"recipient_name"`
	Phone             string                  `json:"phone"`
	Address           string                  `json:"address"`
	DistanceKm        *float64                `json:"distance_km,omitempty"`
	PaymentMethod     enums.PaymentMethod     `json:"payment_method"`
	FulfillmentStatus enums.FulfillmentStatus `json:"fulfillment_status"`
	PaymentStatus     enums.PaymentStatus     `json:"payment_status"`
	SubtotalAmount    int64                   `json:"subtotal_amount"`
	ShippingFee       int64                   `json:"shipping_fee"`
	TotalAmount       int64                   `json:"total_amount"`
	Lines             []OrderLine             `json:"lines"`
	CreatedAt         time.Time               `json:"created_at"`
}

// OrderCreatedEvent is emitted once per placed order.
type OrderCreatedEvent struct {
	Order OrderSnapshot `json:"order"`
}

// OrderStatusChangedEvent records one effective status transition.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Reason  string    `json:"reason,omitempty"`
}

// OrderDeletedEvent is the tombstone left by an administrative hard delete.
type OrderDeletedEvent struct {
	Order     OrderSnapshot `json:"order"`
	DeletedAt time.Time     `json:"deleted_at"`
}

// PaymentInitiatedEvent marks a new provider attempt.
type PaymentInitiatedEvent struct {
	OrderID               uuid.UUID `json:"order_id"`
	TransactionID         uuid.UUID `json:"transaction_id"`
	ProviderTransactionID string    `json:"provider_transaction_id"`
	Amount                int64     `json:"amount"`
}

// PaymentFinalizedEvent marks the single terminal outcome of an attempt.
type PaymentFinalizedEvent struct {
	OrderID               uuid.UUID               `json:"order_id"`
	TransactionID         uuid.UUID               `json:"transaction_id"`
	ProviderTransactionID string                  `json:"provider_transaction_id"`
	Status                enums.TransactionStatus `json:"status"`
	ResultCode            *int                    `json:"result_code,omitempty"`
}
