package payments

import (
	"github.com/angelmondragon/grocerybid-backend/internal/orders"
	"github.com/angelmondragon/grocerybid-backend/internal/wallet"
	"github.com/angelmondragon/grocerybid-backend/pkg/types"
	"github.com/google/uuid"
)

// CreateOrderInput is the body of POST /payment/create-order.
type CreateOrderInput struct {
	OrderID uuid.UUID `json:"orderId" validate:"required"`
}

// VerifyInput carries the fields the checkout widget hands back to the client.
type VerifyInput struct {
	GatewayOrderID   string     `json:"gatewayOrderId" validate:"required"`
	GatewayPaymentID string     `json:"gatewayPaymentId" validate:"required"`
	Signature        string     `json:"signature"`
	OrderID          *uuid.UUID `json:"orderId,omitempty"`
}

// RechargeInput is the body of POST /wallet/recharge.
type RechargeInput struct {
	Amount types.Amount `json:"amount"`
}

// CheckoutDTO tells the client how to open the hosted checkout.
type CheckoutDTO struct {
	GatewayOrderID string      `json:"gatewayOrderId"`
	Amount         types.Money `json:"amount"`
	Currency       string      `json:"currency"`
	KeyID          string      `json:"keyId,omitempty"`
	Mock           bool        `json:"mock"`
	OrderID        *uuid.UUID  `json:"orderId,omitempty"`
	TransactionID  *uuid.UUID  `json:"transactionId,omitempty"`
}

// OrderPaymentResult is returned once an order payment is verified.
type OrderPaymentResult struct {
	Order              *orders.OrderDTO `json:"order"`
	Royalty            types.Money      `json:"royalty"`
	ReferralCommission *types.Money     `json:"referralCommission,omitempty"`
}

// RechargeResult is returned once a recharge is credited.
type RechargeResult struct {
	Transaction *wallet.TransactionDTO `json:"transaction"`
	Balance     types.Money            `json:"balance"`
}
