package services

import (
	"context"
	"testing"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories/memory"
)

func TestOrderQueryServiceEnrichesCustomerOrders(t *testing.T) {
	ctx := context.Background()
	products := memory.NewProductStore(domain.Product{ID: "lamp", Name: "Brass Lamp (2025)", Price: 130000, ImageURL: "https://img/lamp-v2.jpg", Stock: 1})
	orders := memory.NewOrderStore()

	current := purchasedOrder("ord-1")
	removed := purchasedOrder("ord-2")
	removed.ProductID = "retired"
	removed.ProductName = domain.StringPtr("Old Vase")
	other := purchasedOrder("ord-3")
	other.CustomerEmail = "someone@example.com"
	for _, order := range []domain.Order{current, removed, other} {
		if err := orders.Insert(ctx, order); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	svc, err := NewOrderQueryService(OrderQueryServiceDeps{Products: products, Orders: orders})
	if err != nil {
		t.Fatalf("NewOrderQueryService: %v", err)
	}

	views, err := svc.ListCustomerOrders(ctx, "ASHA@example.com")
	if err != nil {
		t.Fatalf("ListCustomerOrders: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(views))
	}
	byID := map[string]CustomerOrderView{}
	for _, view := range views {
		byID[view.Order.ID] = view
	}
	if v := byID["ord-1"]; v.Name != "Brass Lamp (2025)" || v.Price != 130000 || v.ImageURL != "https://img/lamp-v2.jpg" {
		t.Fatalf("expected current catalog values, got %+v", v)
	}
	if v := byID["ord-2"]; v.Name != "Old Vase" || v.Price != 125000 || v.ImageURL != "" {
		t.Fatalf("expected snapshot fallback, got %+v", v)
	}

	all, err := svc.ListActiveOrders(ctx)
	if err != nil {
		t.Fatalf("ListActiveOrders: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(all))
	}
}
