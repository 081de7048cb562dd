package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
)

// Quotation is a vendor's priced bid against one grocery list.
type Quotation struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ListID        uuid.UUID             `gorm:"column:list_id;type:uuid;not null"`
	VendorID      uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null"`
	TotalAmount   decimal.Decimal       `gorm:"column:total_amount;type:numeric(14,2);not null"`
	DiscountTotal decimal.Decimal       `gorm:"column:discount_total;type:numeric(14,2);not null;default:0"`
	Status        enums.QuotationStatus `gorm:"column:status;type:quotation_status_enum;not null;default:'pending'"`
	ValidUntil    *time.Time            `gorm:"column:valid_until"`
	Notes         *string               `gorm:"column:notes"`
	Prices        []QuotationPrice      `gorm:"foreignKey:QuotationID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (q *Quotation) BeforeCreate(*gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// QuotationPrice is the per-line breakdown. Discount is a percentage.
type QuotationPrice struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	QuotationID uuid.UUID       `gorm:"column:quotation_id;type:uuid;not null"`
	Position    int             `gorm:"column:position;not null"`
	ItemName    string          `gorm:"column:item_name;not null"`
	ProductID   *uuid.UUID      `gorm:"column:product_id;type:uuid"`
	BasePrice   decimal.Decimal `gorm:"column:base_price;type:numeric(14,4);not null"`
	Discount    decimal.Decimal `gorm:"column:discount;type:numeric(6,3);not null;default:0"`
	FinalPrice  decimal.Decimal `gorm:"column:final_price;type:numeric(14,4);not null"`
}

func (p *QuotationPrice) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
