package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateGroceryList OutboxAggregateType = "grocery_list"
	AggregateQuotation   OutboxAggregateType = "quotation"
	AggregateOrder       OutboxAggregateType = "order"
	AggregateTransaction OutboxAggregateType = "transaction"
	AggregateUser        OutboxAggregateType = "user"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateGroceryList,
	AggregateQuotation,
	AggregateOrder,
	AggregateTransaction,
	AggregateUser,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventListCreated         OutboxEventType = "list_created"
	EventQuotationSubmitted  OutboxEventType = "quotation_submitted"
	EventOrderCreated        OutboxEventType = "order_created"
	EventOrderPaid           OutboxEventType = "order_paid"
	EventWalletRecharged     OutboxEventType = "wallet_recharged"
	EventReferralRegistered  OutboxEventType = "referral_registered"
	EventDeliveryStatusMoved OutboxEventType = "delivery_status_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventListCreated,
	EventQuotationSubmitted,
	EventOrderCreated,
	EventOrderPaid,
	EventWalletRecharged,
	EventReferralRegistered,
	EventDeliveryStatusMoved,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
