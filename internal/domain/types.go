package domain

import (
	"strings"
	"time"
)

// OrderStatus enumerates the persisted lifecycle states of an active order.
type OrderStatus string

const (
	// OrderStatusPurchased marks an order that has been placed and awaits processing.
	OrderStatusPurchased OrderStatus = "purchased"
	// OrderStatusProcessed marks an archived order. It is never stored on an active record.
	OrderStatusProcessed OrderStatus = "processed"
)

// Role names carried on customer profiles.
const (
	RoleCustomer = "user"
	RoleAdmin    = "admin"
)

// DefaultText is substituted for missing textual fields on legacy order records.
const DefaultText = "N/A"

// ArchiveMonthLayout formats the archive partition key for a processing time.
const ArchiveMonthLayout = "2006-01"

// Product is the catalog view consumed by the fulfilment core. Prices are stored in paise.
type Product struct {
	ID        string
	Name      string
	Category  string
	ImageURL  string
	Price     int64
	Stock     int
	Version   int64
	UpdatedAt time.Time
}

// CustomerProfile holds the identity and delivery contact details of a customer.
type CustomerProfile struct {
	Email       string
	Name        string
	Role        string
	PhoneNumber string
	Address     string
	City        string
	State       string
	Pincode     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasPhone reports whether the profile carries a usable phone number.
func (p CustomerProfile) HasPhone() bool {
	return strings.TrimSpace(p.PhoneNumber) != ""
}

// LineItem is a single requested product and quantity within a checkout.
type LineItem struct {
	ProductID string
	Quantity  int
}

// Order is an active order record. Snapshot fields are optional because records written
// before a field existed may lack it; use ResolveDefaults to obtain a complete view.
type Order struct {
	ID              string
	CheckoutID      string
	ProductID       string
	Quantity        int
	ProductName     *string
	ProductCategory *string
	ProductPrice    *int64
	CustomerEmail   string
	CustomerName    *string
	PhoneNumber     *string
	DeliveryAddress *string
	City            *string
	State           *string
	Pincode         *string
	ItemTotal       *int64
	Status          OrderStatus
	CreatedAt       time.Time
}

// ResolvedOrder is an order with every optional field replaced by an explicit value.
type ResolvedOrder struct {
	ID              string
	CheckoutID      string
	ProductID       string
	Quantity        int
	ProductName     string
	ProductCategory string
	ProductPrice    int64
	CustomerEmail   string
	CustomerName    string
	PhoneNumber     string
	DeliveryAddress string
	City            string
	State           string
	Pincode         string
	ItemTotal       int64
	Status          OrderStatus
	CreatedAt       time.Time
}

// ArchiveRecord is the write-once copy of a processed order.
type ArchiveRecord struct {
	Order       ResolvedOrder
	Month       string
	ProcessedAt time.Time
}

// OrderID returns the identifier of the archived order.
func (r ArchiveRecord) OrderID() string {
	return r.Order.ID
}

// ArchiveMonth returns the archive partition key for the provided processing time.
func ArchiveMonth(t time.Time) string {
	return t.UTC().Format(ArchiveMonthLayout)
}

// ArchiveMonthSummary describes one monthly archive partition.
type ArchiveMonthSummary struct {
	Month   string
	Records int
}

// NotificationKind identifies the purpose of a dispatched notification.
type NotificationKind string

const (
	// NotificationOrderPlaced is sent to the shop administrator after a checkout commits.
	NotificationOrderPlaced NotificationKind = "order.placed"
	// NotificationOrderProcessed is sent to the customer when the order is fulfilled.
	NotificationOrderProcessed NotificationKind = "order.processed"
)

// NotificationDispatch records that a notification for an order was delivered to the sink.
type NotificationDispatch struct {
	OrderID   string
	Kind      NotificationKind
	MessageID string
	SentAt    time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
