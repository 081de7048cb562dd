package wallet

import (
	"time"

	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/angelmondragon/grocerybid-backend/pkg/types"
	"github.com/google/uuid"
)

// TransactionDTO is the transport shape of a ledger row.
type TransactionDTO struct {
	ID               uuid.UUID               `json:"id"`
	UserID           uuid.UUID               `json:"userId"`
	Amount           types.Money             `json:"amount"`
	Type             enums.TransactionType   `json:"type"`
	Status           enums.TransactionStatus `json:"status"`
	BuyerID          *uuid.UUID              `json:"buyerId,omitempty"`
	VendorID         *uuid.UUID              `json:"vendorId,omitempty"`
	OrderID          *uuid.UUID              `json:"orderId,omitempty"`
	ReferenceID      *uuid.UUID              `json:"referenceId,omitempty"`
	GatewayOrderID   *string                 `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID *string                 `json:"gatewayPaymentId,omitempty"`
	Description      *string                 `json:"description,omitempty"`
	CreatedAt        time.Time               `json:"createdAt"`
}

// FromModel maps a transaction row to its DTO.
func FromModel(t *models.Transaction) *TransactionDTO {
	if t == nil {
		return nil
	}
	return &TransactionDTO{
		ID:               t.ID,
		UserID:           t.UserID,
		Amount:           types.NewMoney(t.Amount),
		Type:             t.Type,
		Status:           t.Status,
		BuyerID:          t.BuyerID,
		VendorID:         t.VendorID,
		OrderID:          t.OrderID,
		ReferenceID:      t.ReferenceID,
		GatewayOrderID:   t.GatewayOrderID,
		GatewayPaymentID: t.GatewayPaymentID,
		Description:      t.Description,
		CreatedAt:        t.CreatedAt,
	}
}

// FromModels maps a page of rows.
func FromModels(rows []models.Transaction) []TransactionDTO {
	out := make([]TransactionDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}

// HistoryResult is the wallet summary returned to the owner.
type HistoryResult struct {
	Balance      types.Money      `json:"balance"`
	Transactions []TransactionDTO `json:"transactions"`
	NextCursor   string           `json:"nextCursor,omitempty"`
}

// TransactionPage is the admin view across every wallet.
type TransactionPage struct {
	Transactions []TransactionDTO `json:"transactions"`
	NextCursor   string           `json:"nextCursor,omitempty"`
}

// ListAllParams narrows the admin listing.
type ListAllParams struct {
	UserID *uuid.UUID
	Type   *enums.TransactionType
	Limit  int
	Cursor string
}
