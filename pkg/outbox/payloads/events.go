package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
)

// ListCreatedEvent announces a new open grocery list.
type ListCreatedEvent struct {
	ListID    uuid.UUID `json:"list_id"`
	BuyerID   uuid.UUID `json:"buyer_id"`
	Title     string    `json:"title"`
	ItemCount int       `json:"item_count"`
}

// QuotationSubmittedEvent is emitted once the bidding charge has been debited.
type QuotationSubmittedEvent struct {
	QuotationID   uuid.UUID       `json:"quotation_id"`
	ListID        uuid.UUID       `json:"list_id"`
	BuyerID       uuid.UUID       `json:"buyer_id"`
	VendorID      uuid.UUID       `json:"vendor_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	BiddingCharge decimal.Decimal `json:"bidding_charge"`
}

// OrderCreatedEvent signals that a buyer accepted a quotation.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	QuotationID   uuid.UUID           `json:"quotation_id"`
	ListID        uuid.UUID           `json:"list_id"`
	BuyerID       uuid.UUID           `json:"buyer_id"`
	VendorID      uuid.UUID           `json:"vendor_id"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
}

// DeliveryStatusChangedEvent records vendor fulfilment progress.
type DeliveryStatusChangedEvent struct {
	OrderID  uuid.UUID            `json:"order_id"`
	BuyerID  uuid.UUID            `json:"buyer_id"`
	VendorID uuid.UUID            `json:"vendor_id"`
	From     enums.DeliveryStatus `json:"from"`
	To       enums.DeliveryStatus `json:"to"`
}

// OrderPaidEvent carries the settled amounts of the payment cascade.
type OrderPaidEvent struct {
	OrderID            uuid.UUID        `json:"order_id"`
	BuyerID            uuid.UUID        `json:"buyer_id"`
	VendorID           uuid.UUID        `json:"vendor_id"`
	TotalAmount        decimal.Decimal  `json:"total_amount"`
	Royalty            decimal.Decimal  `json:"royalty"`
	ReferrerID         *uuid.UUID       `json:"referrer_id,omitempty"`
	ReferralCommission *decimal.Decimal `json:"referral_commission,omitempty"`
	GatewayPaymentID   *string          `json:"gateway_payment_id,omitempty"`
	PaidAt             time.Time        `json:"paid_at"`
}

// WalletRechargedEvent is emitted when a pending deposit is credited.
type WalletRechargedEvent struct {
	TransactionID    uuid.UUID       `json:"transaction_id"`
	UserID           uuid.UUID       `json:"user_id"`
	Amount           decimal.Decimal `json:"amount"`
	GatewayOrderID   string          `json:"gateway_order_id"`
	GatewayPaymentID string          `json:"gateway_payment_id"`
}

// ReferralRegisteredEvent records the bonus points granted on signup.
type ReferralRegisteredEvent struct {
	UserID        uuid.UUID       `json:"user_id"`
	ReferrerID    uuid.UUID       `json:"referrer_id"`
	NewUserBonus  decimal.Decimal `json:"new_user_bonus"`
	ReferrerBonus decimal.Decimal `json:"referrer_bonus"`
}
