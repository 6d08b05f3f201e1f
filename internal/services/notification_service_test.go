package services

import (
	"context"
	"strings"
	"testing"

	domain "github.com/artisan-market/api/internal/domain"
)

func TestNotificationServiceOrderPlacedContent(t *testing.T) {
	sink := &captureSink{}
	svc, err := NewNotificationService(NotificationServiceDeps{
		Sink:           sink,
		AdminRecipient: "owner@artisan.example",
		IDGenerator:    func() string { return "n-1" },
	})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}

	customer := customerProfile()
	customer.Name = `<script>alert("x")</script>Asha`
	var breakdown domain.CheckoutBreakdown
	breakdown.Add(domain.CheckoutLine{OrderID: "o-1", ProductID: "lamp", Name: "Brass Lamp", Category: "Decor", Quantity: 2, UnitPrice: 1250, Total: 2500})

	if err := svc.NotifyOrderPlaced(context.Background(), OrderPlacedNotice{
		CheckoutID: "chk-1",
		Customer:   customer,
		Breakdown:  breakdown,
		PlacedAt:   fixedNow,
	}); err != nil {
		t.Fatalf("NotifyOrderPlaced: %v", err)
	}

	sent := sink.sent()
	if len(sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sent))
	}
	msg := sent[0]
	if msg.ID != "n-1" || msg.To != "owner@artisan.example" {
		t.Fatalf("unexpected message envelope %+v", msg)
	}
	for _, want := range []string{"Brass Lamp", "12.50", "25.00", "9876543210", "Jaipur"} {
		if !strings.Contains(msg.Text, want) {
			t.Fatalf("expected text to contain %q:\n%s", want, msg.Text)
		}
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Fatalf("html must be sanitised: %s", msg.HTML)
	}
	if !strings.Contains(msg.HTML, "<li>") {
		t.Fatalf("expected rendered list in html: %s", msg.HTML)
	}
}

func TestNotificationServiceOrderProcessed(t *testing.T) {
	sink := &captureSink{}
	svc, err := NewNotificationService(NotificationServiceDeps{Sink: sink, AdminRecipient: "owner@artisan.example"})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}

	order := domain.ResolveDefaults(purchasedOrder("ord-9"))
	id, err := svc.NotifyOrderProcessed(context.Background(), order)
	if err != nil {
		t.Fatalf("NotifyOrderProcessed: %v", err)
	}
	if id != "msg-1" {
		t.Fatalf("expected sink message id, got %s", id)
	}
	msg := sink.sent()[0]
	if msg.Subject != "Order #ord-9 Processed" || msg.To != "asha@example.com" {
		t.Fatalf("unexpected message %+v", msg)
	}
	for _, want := range []string{"Brass Lamp", "Quantity: 2", "12 MG Road, Jaipur, Rajasthan, 302001"} {
		if !strings.Contains(msg.Text, want) {
			t.Fatalf("expected body to contain %q:\n%s", want, msg.Text)
		}
	}
}

func TestNotificationServiceRejectsMissingRecipient(t *testing.T) {
	svc, err := NewNotificationService(NotificationServiceDeps{Sink: &captureSink{}, AdminRecipient: "owner@artisan.example"})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}
	order := domain.ResolveDefaults(domain.Order{ID: "o-1"})
	if _, err := svc.NotifyOrderProcessed(context.Background(), order); err == nil {
		t.Fatalf("expected error for order without customer email")
	}
	if _, err := NewNotificationService(NotificationServiceDeps{Sink: &captureSink{}}); err == nil {
		t.Fatalf("expected error for missing admin recipient")
	}
}
