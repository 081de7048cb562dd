package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
)

// Transaction is an append-only wallet ledger row. Amount is signed from the
// owner's perspective; only Status and GatewayPaymentID change after insert.
type Transaction struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	Amount           decimal.Decimal         `gorm:"column:amount;type:numeric(14,2);not null"`
	Type             enums.TransactionType   `gorm:"column:type;type:transaction_type_enum;not null"`
	Status           enums.TransactionStatus `gorm:"column:status;type:transaction_status_enum;not null;default:'pending'"`
	BuyerID          *uuid.UUID              `gorm:"column:buyer_id;type:uuid"`
	VendorID         *uuid.UUID              `gorm:"column:vendor_id;type:uuid"`
	OrderID          *uuid.UUID              `gorm:"column:order_id;type:uuid"`
	ReferenceID      *uuid.UUID              `gorm:"column:reference_id;type:uuid"`
	GatewayOrderID   *string                 `gorm:"column:gateway_order_id;uniqueIndex"`
	GatewayPaymentID *string                 `gorm:"column:gateway_payment_id"`
	Description      *string                 `gorm:"column:description"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
