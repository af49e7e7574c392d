package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopflow-backend/pkg/db/models"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	"github.com/angelmondragon/shopflow-backend/pkg/outbox/payloads"
)

// ShippingInfo is the delivery destination and contact captured at checkout.
type ShippingInfo struct {
	RecipientName string   `json:"recipient_name"`
	Phone         string   `json:"phone"`
	Address       string   `json:"address"`
	Note          *string  `json:"note,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	DistanceKm    *float64 `json:"distance_km,omitempty"`
}

// Line is one cart line handed to Create. It is copied, never referenced.
type Line struct {
	ProductID uuid.UUID
	Name      string
	ImageURL  *string
	Quantity  int
	UnitPrice int64
}

// CreateInput carries everything needed to place an order.
type CreateInput struct {
	OwnerID       uuid.UUID
	Lines         []Line
	Shipping      ShippingInfo
	PaymentMethod enums.PaymentMethod
	ShippingFee   int64
}

// Detail is a frozen order line.
type Detail struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	ImageURL    *string   `json:"image_url,omitempty"`
	Quantity    int       `json:"quantity"`
	UnitPrice   int64     `json:"unit_price"`
	LineTotal   int64     `json:"line_total"`
}

// Order is the API projection of a placed order.
type Order struct {
	ID                uuid.UUID               `json:"id"`
	OwnerID           uuid.UUID               `json:"owner_id"`
	RecipientName     string                  `json:"recipient_name"`
	Phone             string                  `json:"phone"`
	Address           string                  `json:"address"`
	Note              *string                 `json:"note,omitempty"`
	DistanceKm        *float64                `json:"distance_km,omitempty"`
	PaymentMethod     enums.PaymentMethod     `json:"payment_method"`
	FulfillmentStatus enums.FulfillmentStatus `json:"fulfillment_status"`
	PaymentStatus     enums.PaymentStatus     `json:"payment_status"`
	SubtotalAmount    int64                   `json:"subtotal_amount"`
	ShippingFee       int64                   `json:"shipping_fee"`
	TotalAmount       int64                   `json:"total_amount"`
	Details           []Detail                `json:"details"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

// ListResult is one page of orders.
type ListResult struct {
	Orders     []Order `json:"orders"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// AdminFilter narrows the administrative order list.
type AdminFilter struct {
	FulfillmentStatus *enums.FulfillmentStatus
	PaymentStatus     *enums.PaymentStatus
	OwnerID           *uuid.UUID
}

func fromModel(m *models.Order) Order {
	out := Order{
		ID:                m.ID,
		OwnerID:           m.OwnerID,
		RecipientName:     m.RecipientName,
		Phone:             m.Phone,
		Address:           m.Address,
		Note:              m.Note,
		DistanceKm:        m.DistanceKm,
		PaymentMethod:     m.PaymentMethod,
		FulfillmentStatus: m.FulfillmentStatus,
		PaymentStatus:     m.PaymentStatus,
		SubtotalAmount:    m.SubtotalAmount,
		ShippingFee:       m.ShippingFee,
		TotalAmount:       m.TotalAmount,
		Details:           make([]Detail, 0, len(m.Details)),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	for _, d := range m.Details {
		out.Details = append(out.Details, Detail{
			ID:          d.ID,
			ProductID:   d.ProductID,
			ProductName: d.ProductName,
			ImageURL:    d.ImageURL,
			Quantity:    d.Quantity,
			UnitPrice:   d.UnitPrice,
			LineTotal:   d.LineTotal,
		})
	}
	return out
}

func snapshotOf(m *models.Order) payloads.OrderSnapshot {
	snap := payloads.OrderSnapshot{
		OrderID:           m.ID,
		OwnerID:           m.OwnerID,
		RecipientName:     m.RecipientName,
		Phone:             m.Phone,
		Address:           m.Address,
		DistanceKm:        m.DistanceKm,
		PaymentMethod:     m.PaymentMethod,
		FulfillmentStatus: m.FulfillmentStatus,
		PaymentStatus:     m.PaymentStatus,
		SubtotalAmount:    m.SubtotalAmount,
		ShippingFee:       m.ShippingFee,
		TotalAmount:       m.TotalAmount,
		Lines:             make([]payloads.OrderLine, 0, len(m.Details)),
		CreatedAt:         m.CreatedAt,
	}
	for _, d := range m.Details {
		snap.Lines = append(snap.Lines, payloads.OrderLine{
			ProductID:   d.ProductID,
			ProductName: d.ProductName,
			Quantity:    d.Quantity,
			UnitPrice:   d.UnitPrice,
			LineTotal:   d.LineTotal,
		})
	}
	return snap
}
