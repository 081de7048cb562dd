package quotations

import (
	"time"

	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/angelmondragon/grocerybid-backend/pkg/types"
	"github.com/google/uuid"
)

// PriceLineInput is one priced line of a bid. Amounts decode leniently so a
// bad basePrice can be reported by item name.
type PriceLineInput struct {
	ItemName  string       `json:"itemName" validate:"max=200"`
	ProductID *uuid.UUID   `json:"product,omitempty"`
	BasePrice types.Amount `json:"basePrice"`
	Discount  types.Amount `json:"discount"`
}

// SubmitInput is the body of POST /quotations.
type SubmitInput struct {
	ListID     uuid.UUID        `json:"listId" validate:"required"`
	Prices     []PriceLineInput `json:"prices" validate:"required,min=1,dive"`
	ValidUntil *time.Time       `json:"validUntil,omitempty"`
	Notes      *string          `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// ListParams drives the role-scoped quotation read.
type ListParams struct {
	ListID *uuid.UUID
	Status *enums.QuotationStatus
	Limit  int
	Cursor string
}

// PriceDTO is the transport shape of a priced line.
type PriceDTO struct {
	Position   int         `json:"position"`
	ItemName   string      `json:"itemName"`
	ProductID  *uuid.UUID  `json:"product,omitempty"`
	BasePrice  types.Money `json:"basePrice"`
	Discount   float64     `json:"discount"`
	FinalPrice types.Money `json:"finalPrice"`
}

// QuotationDTO is the transport shape of a quotation.
type QuotationDTO struct {
	ID            uuid.UUID             `json:"id"`
	ListID        uuid.UUID             `json:"listId"`
	VendorID      uuid.UUID             `json:"vendorId"`
	TotalAmount   types.Money           `json:"totalAmount"`
	DiscountTotal types.Money           `json:"discountTotal"`
	Status        enums.QuotationStatus `json:"status"`
	ValidUntil    *time.Time            `json:"validUntil,omitempty"`
	Notes         *string               `json:"notes,omitempty"`
	Prices        []PriceDTO            `json:"prices"`
	CreatedAt     time.Time             `json:"createdAt"`
}

// QuotationPage wraps a page of quotations and the next cursor.
type QuotationPage struct {
	Quotations []QuotationDTO `json:"quotations"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// FromModel maps a quotation row to its DTO.
func FromModel(q *models.Quotation) *QuotationDTO {
	if q == nil {
		return nil
	}
	prices := make([]PriceDTO, 0, len(q.Prices))
	for _, p := range q.Prices {
		prices = append(prices, PriceDTO{
			Position:   p.Position,
			ItemName:   p.ItemName,
			ProductID:  p.ProductID,
			BasePrice:  types.NewMoney(p.BasePrice),
			Discount:   p.Discount.InexactFloat64(),
			FinalPrice: types.NewMoney(p.FinalPrice),
		})
	}
	return &QuotationDTO{
		ID:            q.ID,
		ListID:        q.ListID,
		VendorID:      q.VendorID,
		TotalAmount:   types.NewMoney(q.TotalAmount),
		DiscountTotal: types.NewMoney(q.DiscountTotal),
		Status:        q.Status,
		ValidUntil:    q.ValidUntil,
		Notes:         q.Notes,
		Prices:        prices,
		CreatedAt:     q.CreatedAt,
	}
}
