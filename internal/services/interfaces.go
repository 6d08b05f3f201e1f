package services

import (
	"context"
	"time"

	domain "github.com/artisan-market/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	ResolvedOrder      = domain.ResolvedOrder
	ArchiveRecord      = domain.ArchiveRecord
	CustomerProfile    = domain.CustomerProfile
	LineItem           = domain.LineItem
	SystemHealthReport = domain.SystemHealthReport
)

// InventoryService owns the stock counters. TryReserve returns false only when stock is
// insufficient; every other failure is reported as an error.
type InventoryService interface {
	TryReserve(ctx context.Context, productID string, qty int) (bool, error)
	Release(ctx context.Context, productID string, qty int) error
}

// OrderIntakeService turns a customer's cart into active orders.
type OrderIntakeService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error)
}

// OrderQueryService lists active orders for customers and administrators.
type OrderQueryService interface {
	ListCustomerOrders(ctx context.Context, email string) ([]CustomerOrderView, error)
	ListActiveOrders(ctx context.Context) ([]ResolvedOrder, error)
}

// OrderProcessorService moves an order from purchased to processed.
type OrderProcessorService interface {
	ProcessOrder(ctx context.Context, orderID string) (ArchiveRecord, error)
}

// NotificationService renders and dispatches order notifications.
type NotificationService interface {
	NotifyOrderPlaced(ctx context.Context, notice OrderPlacedNotice) error
	// NotifyOrderProcessed returns the sink message id.
	NotifyOrderProcessed(ctx context.Context, order ResolvedOrder) (string, error)
}

// NotificationSink delivers rendered notifications (SMTP, Pub/Sub mailer topic, log).
type NotificationSink interface {
	Send(ctx context.Context, message NotificationMessage) (string, error)
}

// OrderEventPublisher emits order lifecycle events to downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// ReportService exposes the monthly archive as downloadable reports.
type ReportService interface {
	ListReports(ctx context.Context) ([]ReportSummary, error)
	BuildReport(ctx context.Context, month string) (Report, error)
	// ResolveDownload returns either the report content or a redirect URL for filename.
	ResolveDownload(ctx context.Context, filename string) (ReportDownload, error)
}

// ReportPublisher uploads a report to object storage and returns a time-limited download URL.
type ReportPublisher interface {
	Publish(ctx context.Context, report Report) (string, error)
}

// ProfileService manages customer contact details.
type ProfileService interface {
	EnsureProfile(ctx context.Context, identity ProfileIdentity) (CustomerProfile, error)
	UpdatePhone(ctx context.Context, email string, phone string) (CustomerProfile, error)
	UpdateAddress(ctx context.Context, cmd UpdateAddressCommand) (CustomerProfile, error)
}

// SystemService reports service health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// FulfilmentMetrics receives counters emitted by the order workflows.
type FulfilmentMetrics interface {
	ObserveReservation(outcome string)
	ObserveIntake(outcome string)
	ObserveProcessing(outcome string, elapsed time.Duration)
	ObserveNotification(kind domain.NotificationKind, outcome string)
	ObserveArchive(outcome string)
	ObserveConsistencyError(stage string)
}

// Metric outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeRefused   = "refused"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
)

type noopMetrics struct{}

func (noopMetrics) ObserveReservation(string) {}
func (noopMetrics) ObserveIntake(string) {}
func (noopMetrics) ObserveProcessing(string, time.Duration) {}
func (noopMetrics) ObserveNotification(domain.NotificationKind, string) {}
func (noopMetrics) ObserveArchive(string) {}
func (noopMetrics) ObserveConsistencyError(string) {}

// Command and DTO definitions ------------------------------------------------

// CustomerRef identifies the authenticated customer placing an order.
type CustomerRef struct {
	Email string
	Name  string
}

type PlaceOrderCommand struct {
	Customer CustomerRef
	Items    []LineItem
}

// PlaceOrderResult describes a committed checkout.
type PlaceOrderResult struct {
	CheckoutID string
	Orders     []Order
	Breakdown  domain.CheckoutBreakdown
}

// OrderIDs returns the ids of the created orders in request order.
func (r PlaceOrderResult) OrderIDs() []string {
	ids := make([]string, 0, len(r.Orders))
	for _, order := range r.Orders {
		ids = append(ids, order.ID)
	}
	return ids
}

// CustomerOrderView is an active order enriched with the current catalog entry.
type CustomerOrderView struct {
	Order    ResolvedOrder
	Name     string
	Price    int64
	ImageURL string
}

type OrderPlacedNotice struct {
	CheckoutID string
	Customer   CustomerProfile
	Breakdown  domain.CheckoutBreakdown
	PlacedAt   time.Time
}

// NotificationMessage is a rendered notification ready for delivery.
type NotificationMessage struct {
	ID      string
	Kind    domain.NotificationKind
	OrderID string
	To      string
	Subject string
	Text    string
	HTML    string
}

// OrderEvent is published after an order changes state.
type OrderEvent struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	OrderID       string    `json:"orderId"`
	CheckoutID    string    `json:"checkoutId,omitempty"`
	CustomerEmail string    `json:"customerEmail"`
	ProductID     string    `json:"productId"`
	Quantity      int       `json:"quantity"`
	ItemTotal     int64     `json:"itemTotal"`
	Month         string    `json:"month,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Order event types.
const (
	EventOrderPlaced    = "order.placed"
	EventOrderProcessed = "order.processed"
)

type ReportSummary struct {
	Filename string
	Month    string
	Records  int
}

// Report is a rendered monthly archive export.
type Report struct {
	Filename    string
	Month       string
	ContentType string
	Records     int
	Content     []byte
}

type ReportDownload struct {
	Report      Report
	RedirectURL string
}

// ProfileIdentity is the authenticated principal a profile is created from.
type ProfileIdentity struct {
	Email string
	Name  string
	Role  string
}

type UpdateAddressCommand struct {
	Email   string
	Address string
	City    string
	State   string
	Pincode string
}
