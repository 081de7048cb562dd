package lists

import (
	"time"

	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/angelmondragon/grocerybid-backend/pkg/types"
	"github.com/google/uuid"
)

// ItemInput is one requested line in a create or append request.
type ItemInput struct {
	ProductID     *uuid.UUID   `json:"product,omitempty"`
	Name          string       `json:"name" validate:"required,max=200"`
	Quantity      types.Amount `json:"quantity"`
	Unit          string       `json:"unit" validate:"required,max=32"`
	Quality       *string      `json:"quality,omitempty" validate:"omitempty,max=120"`
	Brand         *string      `json:"brand,omitempty" validate:"omitempty,max=120"`
	Specification *string      `json:"specification,omitempty" validate:"omitempty,max=500"`
}

// CreateListInput is the body of POST /lists.
type CreateListInput struct {
	Title       string      `json:"title" validate:"required,max=200"`
	Description *string     `json:"description,omitempty" validate:"omitempty,max=2000"`
	Items       []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// ListParams drives the role-scoped list read.
type ListParams struct {
	Status *enums.ListStatus
	Limit  int
	Cursor string
}

// ItemDTO is the transport shape of a list line.
type ItemDTO struct {
	ID            uuid.UUID  `json:"id"`
	Position      int        `json:"position"`
	ProductID     *uuid.UUID `json:"product,omitempty"`
	Name          string     `json:"name"`
	Quantity      float64    `json:"quantity"`
	Unit          string     `json:"unit"`
	Quality       *string    `json:"quality,omitempty"`
	Brand         *string    `json:"brand,omitempty"`
	Specification *string    `json:"specification,omitempty"`
}

// ListDTO is the transport shape of a grocery list.
type ListDTO struct {
	ID          uuid.UUID        `json:"id"`
	BuyerID     uuid.UUID        `json:"buyerId"`
	Title       string           `json:"title"`
	Description *string          `json:"description,omitempty"`
	Status      enums.ListStatus `json:"status"`
	Items       []ItemDTO        `json:"items"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// ListPage wraps a page of lists and the next cursor.
type ListPage struct {
	Lists      []ListDTO `json:"lists"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

// FromModel maps a list row to its DTO.
func FromModel(l *models.GroceryList) *ListDTO {
	if l == nil {
		return nil
	}
	items := make([]ItemDTO, 0, len(l.Items))
	for _, item := range l.Items {
		items = append(items, ItemDTO{
			ID:            item.ID,
			Position:      item.Position,
			ProductID:     item.ProductID,
			Name:          item.Name,
			Quantity:      item.Quantity.InexactFloat64(),
			Unit:          item.Unit,
			Quality:       item.Quality,
			Brand:         item.Brand,
			Specification: item.Specification,
		})
	}
	return &ListDTO{
		ID:          l.ID,
		BuyerID:     l.BuyerID,
		Title:       l.Title,
		Description: l.Description,
		Status:      l.Status,
		Items:       items,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}
