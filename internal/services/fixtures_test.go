package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories"
	"github.com/artisan-market/api/internal/repositories/memory"
)

type captureSink struct {
	mu       sync.Mutex
	messages []NotificationMessage
	err      error
}

func (c *captureSink) Send(_ context.Context, msg NotificationMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.messages = append(c.messages, msg)
	return fmt.Sprintf("msg-%d", len(c.messages)), nil
}

func (c *captureSink) sent() []NotificationMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]NotificationMessage(nil), c.messages...)
}

type captureEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (c *captureEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

// blockingEvents holds every publish until its context is done, like a writer waiting on an
// unreachable broker.
type blockingEvents struct {
	mu          sync.Mutex
	calls       int
	hadDeadline bool
}

func (b *blockingEvents) PublishOrderEvent(ctx context.Context, _ OrderEvent) error {
	_, deadline := ctx.Deadline()
	b.mu.Lock()
	b.calls++
	b.hadDeadline = deadline
	b.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingEvents) snapshot() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls, b.hadDeadline
}

type captureMetrics struct {
	noopMetrics
	mu          sync.Mutex
	consistency []string
	archive     []string
	intake      []string
}

func (c *captureMetrics) ObserveIntake(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intake = append(c.intake, outcome)
}

func (c *captureMetrics) intakeOutcomes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.intake...)
}

func (c *captureMetrics) ObserveConsistencyError(stage string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consistency = append(c.consistency, stage)
}

func (c *captureMetrics) ObserveArchive(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.archive = append(c.archive, outcome)
}

type logEntry struct {
	event  string
	fields map[string]any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (c *captureLogger) log(_ context.Context, event string, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, logEntry{event: event, fields: fields})
}

func (c *captureLogger) find(event string) (logEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.event == event {
			return entry, true
		}
	}
	return logEntry{}, false
}

// flakyOrders fails Delete with deleteErr while set.
type flakyOrders struct {
	repositories.OrderRepository
	mu        sync.Mutex
	deleteErr error
}

func (f *flakyOrders) Delete(ctx context.Context, orderID string) error {
	f.mu.Lock()
	err := f.deleteErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.OrderRepository.Delete(ctx, orderID)
}

// flakyArchive fails Append with appendErr while set.
type flakyArchive struct {
	repositories.ArchiveRepository
	mu        sync.Mutex
	appendErr error
	calls     int
}

func (f *flakyArchive) Append(ctx context.Context, record domain.ArchiveRecord) (domain.ArchiveRecord, bool, error) {
	f.mu.Lock()
	f.calls++
	err := f.appendErr
	f.mu.Unlock()
	if err != nil {
		return domain.ArchiveRecord{}, false, err
	}
	return f.ArchiveRepository.Append(ctx, record)
}

func (f *flakyArchive) setErr(err error) {
	f.mu.Lock()
	f.appendErr = err
	f.mu.Unlock()
}

var errBackend = errors.New("backend unavailable")

var fixedNow = time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)

func sequenceIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}

func seedProducts() []domain.Product {
	return []domain.Product{
		{ID: "lamp", Name: "Brass Lamp", Category: "Decor", ImageURL: "https://img/lamp.jpg", Price: 125000, Stock: 5},
		{ID: "rug", Name: "Jute Rug", Category: "Textiles", ImageURL: "https://img/rug.jpg", Price: 249900, Stock: 1},
	}
}

func customerProfile() domain.CustomerProfile {
	return domain.CustomerProfile{
		Email:       "asha@example.com",
		Name:        "Asha",
		Role:        domain.RoleCustomer,
		PhoneNumber: "9876543210",
		Address:     "12 MG Road",
		City:        "Jaipur",
		State:       "Rajasthan",
		Pincode:     "302001",
	}
}

type intakeFixture struct {
	products *memory.ProductStore
	orders   *flakyOrders
	profiles *memory.ProfileStore
	sink     *captureSink
	events   *captureEvents
	metrics  *captureMetrics
	logger   *captureLogger
	svc      OrderIntakeService
}

func newIntakeFixture(t *testing.T, profiles ...domain.CustomerProfile) *intakeFixture {
	t.Helper()
	if len(profiles) == 0 {
		profiles = []domain.CustomerProfile{customerProfile()}
	}
	f := &intakeFixture{
		products: memory.NewProductStore(seedProducts()...),
		orders:   &flakyOrders{OrderRepository: memory.NewOrderStore()},
		profiles: memory.NewProfileStore(profiles...),
		sink:     &captureSink{},
		events:   &captureEvents{},
		metrics:  &captureMetrics{},
		logger:   &captureLogger{},
	}

	inventory, err := NewInventoryService(InventoryServiceDeps{Products: f.products})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}
	notifications, err := NewNotificationService(NotificationServiceDeps{
		Sink:           f.sink,
		AdminRecipient: "owner@artisan.example",
	})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}
	f.svc, err = NewOrderIntakeService(OrderIntakeServiceDeps{
		Products:      f.products,
		Orders:        f.orders,
		Profiles:      f.profiles,
		Inventory:     inventory,
		Notifications: notifications,
		Events:        f.events,
		Metrics:       f.metrics,
		Clock:         func() time.Time { return fixedNow },
		IDGenerator:   sequenceIDs("id"),
		Logger:        f.logger.log,
	})
	if err != nil {
		t.Fatalf("NewOrderIntakeService: %v", err)
	}
	return f
}

func (f *intakeFixture) stock(t *testing.T, productID string) int {
	t.Helper()
	product, err := f.products.Get(context.Background(), productID)
	if err != nil {
		t.Fatalf("get product %s: %v", productID, err)
	}
	return product.Stock
}

func (f *intakeFixture) activeOrders(t *testing.T) []domain.Order {
	t.Helper()
	orders, err := f.orders.ListAll(context.Background())
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	return orders
}
