package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
)

// GroceryList is a buyer's itemized requirement that vendors bid on.
type GroceryList struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID     uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null"`
	Title       string            `gorm:"column:title;not null"`
	Description *string           `gorm:"column:description"`
	Status      enums.ListStatus  `gorm:"column:status;type:list_status_enum;not null;default:'open'"`
	Items       []GroceryListItem `gorm:"foreignKey:ListID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *GroceryList) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// GroceryListItem is one requested line; Position keeps display order stable.
type GroceryListItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ListID        uuid.UUID       `gorm:"column:list_id;type:uuid;not null"`
	Position      int             `gorm:"column:position;not null"`
	ProductID     *uuid.UUID      `gorm:"column:product_id;type:uuid"`
	Name          string          `gorm:"column:name;not null"`
	Quantity      decimal.Decimal `gorm:"column:quantity;type:numeric(12,3);not null"`
	Unit          string          `gorm:"column:unit;not null"`
	Quality       *string         `gorm:"column:quality"`
	Brand         *string         `gorm:"column:brand"`
	Specification *string         `gorm:"column:specification"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *GroceryListItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
