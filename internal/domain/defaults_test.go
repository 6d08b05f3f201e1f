package domain

import (
	"testing"
	"time"
)

func TestResolveDefaultsFillsMissingFields(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	order := Order{
		ID:            "ord-1",
		ProductID:     "prod-1",
		Quantity:      3,
		ProductPrice:  Int64Ptr(2500),
		CustomerEmail: "asha@example.com",
		CreatedAt:     created,
	}

	resolved := ResolveDefaults(order)

	if resolved.ProductName != DefaultText || resolved.PhoneNumber != DefaultText || resolved.Pincode != DefaultText {
		t.Fatalf("expected text defaults, got %#v", resolved)
	}
	if resolved.ItemTotal != 7500 {
		t.Fatalf("expected derived item total 7500, got %d", resolved.ItemTotal)
	}
	if resolved.Status != OrderStatusPurchased {
		t.Fatalf("expected purchased status, got %q", resolved.Status)
	}
	if !resolved.CreatedAt.Equal(created) {
		t.Fatalf("unexpected created at %s", resolved.CreatedAt)
	}
}

func TestResolveDefaultsKeepsStoredValues(t *testing.T) {
	order := Order{
		ID:              "ord-2",
		Quantity:        2,
		ProductName:     StringPtr("Brass lamp"),
		ProductCategory: StringPtr("Decor"),
		ProductPrice:    Int64Ptr(10000),
		CustomerEmail:   "ravi@example.com",
		CustomerName:    StringPtr("Ravi"),
		PhoneNumber:     StringPtr("9876543210"),
		ItemTotal:       Int64Ptr(19000),
		Status:          OrderStatusPurchased,
	}

	resolved := ResolveDefaults(order)

	if resolved.ProductName != "Brass lamp" || resolved.CustomerName != "Ravi" {
		t.Fatalf("unexpected resolved names %#v", resolved)
	}
	if resolved.ItemTotal != 19000 {
		t.Fatalf("stored item total must win, got %d", resolved.ItemTotal)
	}
}

func TestResolveDefaultsDoesNotMutateInput(t *testing.T) {
	blank := "  "
	order := Order{ID: "ord-3", Quantity: 1, City: &blank}

	_ = ResolveDefaults(order)

	if order.City == nil || *order.City != "  " {
		t.Fatalf("input was mutated: %#v", order.City)
	}
	if order.ItemTotal != nil || order.ProductName != nil {
		t.Fatalf("input optional fields must stay unset")
	}
}

func TestArchiveMonthUsesUTC(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	ts := time.Date(2024, 2, 1, 3, 0, 0, 0, ist)

	if got := ArchiveMonth(ts); got != "2024-01" {
		t.Fatalf("expected 2024-01, got %s", got)
	}
}
