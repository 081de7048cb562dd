package orders

import (
	"time"

	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/angelmondragon/grocerybid-backend/pkg/types"
	"github.com/google/uuid"
)

// AcceptInput is the body of POST /orders.
type AcceptInput struct {
	QuotationID   uuid.UUID           `json:"quotationId" validate:"required"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod" validate:"required"`
}

// DeliveryInput is the body of PUT /orders/{id}/status.
type DeliveryInput struct {
	Status enums.DeliveryStatus `json:"status" validate:"required"`
}

// ListParams filters the role-scoped order list.
type ListParams struct {
	PaymentStatus  *enums.PaymentStatus
	DeliveryStatus *enums.DeliveryStatus
	Limit          int
	Cursor         string
}

// OrderDTO is the transport shape of an order.
type OrderDTO struct {
	ID               uuid.UUID            `json:"id"`
	QuotationID      uuid.UUID            `json:"quotationId"`
	ListID           uuid.UUID            `json:"listId"`
	BuyerID          uuid.UUID            `json:"buyerId"`
	VendorID         uuid.UUID            `json:"vendorId"`
	TotalAmount      types.Money          `json:"totalAmount"`
	PaymentMethod    enums.PaymentMethod  `json:"paymentMethod"`
	PaymentStatus    enums.PaymentStatus  `json:"paymentStatus"`
	DeliveryStatus   enums.DeliveryStatus `json:"deliveryStatus"`
	GatewayOrderID   *string              `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID *string              `json:"gatewayPaymentId,omitempty"`
	PaidAt           *time.Time           `json:"paidAt,omitempty"`
	DeliveredAt      *time.Time           `json:"deliveredAt,omitempty"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

// OrderPage wraps a page of orders and the next cursor.
type OrderPage struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// FromModel maps an order row to its DTO.
func FromModel(o *models.Order) *OrderDTO {
	if o == nil {
		return nil
	}
	return &OrderDTO{
		ID:               o.ID,
		QuotationID:      o.QuotationID,
		ListID:           o.ListID,
		BuyerID:          o.BuyerID,
		VendorID:         o.VendorID,
		TotalAmount:      types.NewMoney(o.TotalAmount),
		PaymentMethod:    o.PaymentMethod,
		PaymentStatus:    o.PaymentStatus,
		DeliveryStatus:   o.DeliveryStatus,
		GatewayOrderID:   o.GatewayOrderID,
		GatewayPaymentID: o.GatewayPaymentID,
		PaidAt:           o.PaidAt,
		DeliveredAt:      o.DeliveredAt,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}
