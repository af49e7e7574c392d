package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopflow-backend/pkg/enums"
)

// Order is a placed purchase. TotalAmount is fixed at creation.
type Order struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID           uuid.UUID               `gorm:"column:owner_id;type:uuid;not null"`
	RecipientName     string                  `gorm:"column:recipient_name;not null"`
	Phone             string                  `gorm:"column:phone;not null"`
	Address           string                  `gorm:"column:address;not null"`
	Note              *string                 `gorm:"column:note"`
	DistanceKm        *float64                `gorm:"column:distance_km"`
	PaymentMethod     enums.PaymentMethod     `gorm:"column:payment_method;type:text;not null"`
	FulfillmentStatus enums.FulfillmentStatus `gorm:"column:fulfillment_status;type:text;not null;default:'PENDING'"`
	PaymentStatus     enums.PaymentStatus     `gorm:"column:payment_status;type:text;not null;default:'PENDING'"`
	SubtotalAmount    int64                   `gorm:"column:subtotal_amount;not null"`
	ShippingFee       int64                   `gorm:"column:shipping_fee;not null"`
	TotalAmount       int64                   `gorm:"column:total_amount;not null"`
	Details           []OrderDetail           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderDetail is a frozen copy of a cart line taken when the order was created.
type OrderDetail struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	ProductName string    `gorm:"column:product_name;not null;default:''"`
	ImageURL    *string   `gorm:"column:image_url"`
	Quantity    int       `gorm:"column:quantity;not null"`
	UnitPrice   int64     `gorm:"column:unit_price;not null"`
	LineTotal   int64     `gorm:"column:line_total;not null"`
	Position    int       `gorm:"column:position;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (d *OrderDetail) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
