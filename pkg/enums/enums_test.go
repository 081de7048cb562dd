package enums

import "testing"

func TestDeliveryStatusCanAdvanceTo(t *testing.T) {
	cases := []struct {
		from DeliveryStatus
		to   DeliveryStatus
		want bool
	}{
		{DeliveryStatusPending, DeliveryStatusProcessing, true},
		{DeliveryStatusPending, DeliveryStatusDelivered, true},
		{DeliveryStatusShipped, DeliveryStatusDispatched, true},
		{DeliveryStatusDelivered, DeliveryStatusPending, false},
		{DeliveryStatusShipped, DeliveryStatusShipped, false},
		{DeliveryStatus("lost"), DeliveryStatusDelivered, false},
		{DeliveryStatusPending, DeliveryStatus("lost"), false},
	}
	for _, tc := range cases {
		if got := tc.from.CanAdvanceTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestParseUserRole(t *testing.T) {
	role, err := ParseUserRole("vendor")
	if err != nil || role != UserRoleVendor {
		t.Fatalf("expected vendor, got %q err=%v", role, err)
	}
	if _, err := ParseUserRole("owner"); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if UserRoleAdmin.SelfAssignable() {
		t.Fatal("admin must not be self assignable")
	}
}

func TestParseTransactionType(t *testing.T) {
	for _, raw := range []string{"deposit", "withdrawal", "bidding_charge", "referral_commission", "royalty_deduction", "order_payment"} {
		if _, err := ParseTransactionType(raw); err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
	}
	if _, err := ParseTransactionType("refund"); err == nil {
		t.Fatal("expected error for unknown transaction type")
	}
}
