package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
)

// Order is created from exactly one accepted quotation.
type Order struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	QuotationID      uuid.UUID            `gorm:"column:quotation_id;type:uuid;not null;uniqueIndex"`
	ListID           uuid.UUID            `gorm:"column:list_id;type:uuid;not null"`
	BuyerID          uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null"`
	VendorID         uuid.UUID            `gorm:"column:vendor_id;type:uuid;not null"`
	TotalAmount      decimal.Decimal      `gorm:"column:total_amount;type:numeric(14,2);not null"`
	PaymentMethod    enums.PaymentMethod  `gorm:"column:payment_method;type:payment_method_enum;not null"`
	PaymentStatus    enums.PaymentStatus  `gorm:"column:payment_status;type:payment_status_enum;not null;default:'pending'"`
	DeliveryStatus   enums.DeliveryStatus `gorm:"column:delivery_status;type:delivery_status_enum;not null;default:'pending'"`
	GatewayOrderID   *string              `gorm:"column:gateway_order_id"`
	GatewayPaymentID *string              `gorm:"column:gateway_payment_id"`
	PaidAt           *time.Time           `gorm:"column:paid_at"`
	DeliveredAt      *time.Time           `gorm:"column:delivered_at"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
