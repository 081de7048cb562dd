package enums

import "fmt"

// DeliveryStatus tracks vendor fulfilment of an order.
type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusShipped    DeliveryStatus = "shipped"
	DeliveryStatusDispatched DeliveryStatus = "dispatched"
	DeliveryStatusDelivered  DeliveryStatus = "delivered"
)

// validDeliveryStatuses is ordered; the index is the fulfilment rank.
var validDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusPending,
	DeliveryStatusProcessing,
	DeliveryStatusShipped,
	DeliveryStatusDispatched,
	DeliveryStatusDelivered,
}

// String implements fmt.Stringer.
func (d DeliveryStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryStatus.
func (d DeliveryStatus) IsValid() bool {
	return d.rank() >= 0
}

// CanAdvanceTo reports whether next is strictly later in the fulfilment flow.
func (d DeliveryStatus) CanAdvanceTo(next DeliveryStatus) bool {
	from, to := d.rank(), next.rank()
	return from >= 0 && to > from
}

func (d DeliveryStatus) rank() int {
	for i, candidate := range validDeliveryStatuses {
		if candidate == d {
			return i
		}
	}
	return -1
}

// ParseDeliveryStatus converts raw input into a DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	for _, candidate := range validDeliveryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery status %q", value)
}
