package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories/memory"
)

type processorFixture struct {
	orders  *flakyOrders
	archive *flakyArchive
	ledger  *memory.DispatchLedger
	sink    *captureSink
	events  *captureEvents
	metrics *captureMetrics
	logger  *captureLogger
	svc     *orderProcessorService
}

func newProcessorFixture(t *testing.T, orders ...domain.Order) *processorFixture {
	t.Helper()
	store := memory.NewOrderStore()
	for _, order := range orders {
		if err := store.Insert(context.Background(), order); err != nil {
			t.Fatalf("seed order: %v", err)
		}
	}
	f := &processorFixture{
		orders:  &flakyOrders{OrderRepository: store},
		archive: &flakyArchive{ArchiveRepository: memory.NewArchiveStore()},
		ledger:  memory.NewDispatchLedger(),
		sink:    &captureSink{},
		events:  &captureEvents{},
		metrics: &captureMetrics{},
		logger:  &captureLogger{},
	}
	notifications, err := NewNotificationService(NotificationServiceDeps{
		Sink:           f.sink,
		AdminRecipient: "owner@artisan.example",
	})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}
	svc, err := NewOrderProcessorService(OrderProcessorServiceDeps{
		Orders:        f.orders,
		Archive:       f.archive,
		Ledger:        f.ledger,
		Notifications: notifications,
		Events:        f.events,
		Metrics:       f.metrics,
		Clock:         func() time.Time { return fixedNow },
		IDGenerator:   sequenceIDs("evt"),
		Logger:        f.logger.log,
	})
	if err != nil {
		t.Fatalf("NewOrderProcessorService: %v", err)
	}
	f.svc = svc.(*orderProcessorService)
	return f
}

func purchasedOrder(id string) domain.Order {
	return domain.Order{
		ID:              id,
		CheckoutID:      "chk-1",
		ProductID:       "lamp",
		Quantity:        2,
		ProductName:     domain.StringPtr("Brass Lamp"),
		ProductCategory: domain.StringPtr("Decor"),
		ProductPrice:    domain.Int64Ptr(125000),
		CustomerEmail:   "asha@example.com",
		CustomerName:    domain.StringPtr("Asha"),
		PhoneNumber:     domain.StringPtr("9876543210"),
		DeliveryAddress: domain.StringPtr("12 MG Road"),
		City:            domain.StringPtr("Jaipur"),
		State:           domain.StringPtr("Rajasthan"),
		Pincode:         domain.StringPtr("302001"),
		ItemTotal:       domain.Int64Ptr(250000),
		Status:          domain.OrderStatusPurchased,
		CreatedAt:       fixedNow.Add(-time.Hour),
	}
}

func TestOrderProcessorProcessesOrder(t *testing.T) {
	f := newProcessorFixture(t, purchasedOrder("ord-1"))
	ctx := context.Background()

	record, err := f.svc.ProcessOrder(ctx, "ord-1")
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if record.Month != "2025-01" || !record.ProcessedAt.Equal(fixedNow) {
		t.Fatalf("unexpected archive partition %+v", record)
	}
	if record.Order.Status != domain.OrderStatusProcessed {
		t.Fatalf("expected processed status, got %s", record.Order.Status)
	}

	if _, err := f.orders.FindByID(ctx, "ord-1"); err == nil {
		t.Fatalf("expected order to be removed")
	}
	stored, err := f.archive.Get(ctx, "ord-1")
	if err != nil {
		t.Fatalf("archive get: %v", err)
	}
	if stored.Order.ItemTotal != 250000 {
		t.Fatalf("unexpected archived total %d", stored.Order.ItemTotal)
	}

	sent := f.sink.sent()
	if len(sent) != 1 || sent[0].To != "asha@example.com" || sent[0].Subject != "Order #ord-1 Processed" {
		t.Fatalf("unexpected notifications %+v", sent)
	}
	dispatch, found, err := f.ledger.Lookup(ctx, "ord-1", domain.NotificationOrderProcessed)
	if err != nil || !found {
		t.Fatalf("expected ledger entry, found=%v err=%v", found, err)
	}
	if dispatch.MessageID != "msg-1" {
		t.Fatalf("unexpected message id %s", dispatch.MessageID)
	}
	if len(f.events.events) != 1 || f.events.events[0].Type != EventOrderProcessed || f.events.events[0].Month != "2025-01" {
		t.Fatalf("unexpected events %+v", f.events.events)
	}
}

func TestOrderProcessorRetryAfterSuccessIsNotFound(t *testing.T) {
	f := newProcessorFixture(t, purchasedOrder("ord-1"))
	ctx := context.Background()

	if _, err := f.svc.ProcessOrder(ctx, "ord-1"); err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	_, err := f.svc.ProcessOrder(ctx, "ord-1")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) || notFound.Resource != "order" {
		t.Fatalf("expected order not found, got %v", err)
	}
	if len(f.sink.sent()) != 1 {
		t.Fatalf("expected a single notification")
	}
}

func TestOrderProcessorNotificationFailureLeavesOrder(t *testing.T) {
	f := newProcessorFixture(t, purchasedOrder("ord-1"))
	f.sink.err = errors.New("smtp down")
	ctx := context.Background()

	_, err := f.svc.ProcessOrder(ctx, "ord-1")
	if !errors.Is(err, ErrNotification) {
		t.Fatalf("expected notification error, got %v", err)
	}
	if _, err := f.orders.FindByID(ctx, "ord-1"); err != nil {
		t.Fatalf("order must remain active: %v", err)
	}
	if f.archive.calls != 0 {
		t.Fatalf("archive must not be attempted")
	}
	if _, found, _ := f.ledger.Lookup(ctx, "ord-1", domain.NotificationOrderProcessed); found {
		t.Fatalf("failed send must not be recorded")
	}
}

func TestOrderProcessorArchiveFailureRetriesWithoutResend(t *testing.T) {
	f := newProcessorFixture(t, purchasedOrder("ord-1"))
	f.archive.setErr(errBackend)
	ctx := context.Background()

	_, err := f.svc.ProcessOrder(ctx, "ord-1")
	var archErr *ArchivalError
	if !errors.As(err, &archErr) || archErr.OrderID != "ord-1" {
		t.Fatalf("expected ArchivalError, got %v", err)
	}
	if _, err := f.orders.FindByID(ctx, "ord-1"); err != nil {
		t.Fatalf("order must remain active: %v", err)
	}

	f.archive.setErr(nil)
	if _, err := f.svc.ProcessOrder(ctx, "ord-1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := len(f.sink.sent()); got != 1 {
		t.Fatalf("expected the customer to be notified once, got %d", got)
	}
	if _, ok := f.logger.find(eventOrderNotifySkipped); !ok {
		t.Fatalf("expected skipped notification to be logged")
	}
}

func TestOrderProcessorArchiveTimeout(t *testing.T) {
	f := newProcessorFixture(t, purchasedOrder("ord-1"))
	f.svc.archiveTimeout = 10 * time.Millisecond
	f.svc.archive = blockingArchive{}

	_, err := f.svc.ProcessOrder(context.Background(), "ord-1")
	if !errors.Is(err, ErrArchival) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected archival timeout, got %v", err)
	}
}

type blockingArchive struct{ *memory.ArchiveStore }

func (blockingArchive) Append(ctx context.Context, _ domain.ArchiveRecord) (domain.ArchiveRecord, bool, error) {
	<-ctx.Done()
	return domain.ArchiveRecord{}, false, ctx.Err()
}

func TestOrderProcessorDeleteFailureIsConsistencyError(t *testing.T) {
	f := newProcessorFixture(t, purchasedOrder("ord-1"))
	f.orders.deleteErr = errBackend
	ctx := context.Background()

	record, err := f.svc.ProcessOrder(ctx, "ord-1")
	var consistency *ConsistencyError
	if !errors.As(err, &consistency) || consistency.OrderID != "ord-1" || consistency.Stage != stageDelete {
		t.Fatalf("expected ConsistencyError, got %v", err)
	}
	if record.OrderID() != "ord-1" {
		t.Fatalf("expected archived record to be returned")
	}
	if len(f.metrics.consistency) != 1 {
		t.Fatalf("expected consistency counter, got %v", f.metrics.consistency)
	}
	entry, ok := f.logger.find(eventOrderConsistency)
	if !ok || entry.fields["escalation"] != true {
		t.Fatalf("expected escalation log, got %+v", entry)
	}

	// A later retry completes without a second archive record or notification.
	f.orders.mu.Lock()
	f.orders.deleteErr = nil
	f.orders.mu.Unlock()
	if _, err := f.svc.ProcessOrder(ctx, "ord-1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	months, err := f.archive.ListMonths(ctx)
	if err != nil {
		t.Fatalf("ListMonths: %v", err)
	}
	if len(months) != 1 || months[0].Records != 1 {
		t.Fatalf("expected exactly one archived record, got %+v", months)
	}
	if got := len(f.sink.sent()); got != 1 {
		t.Fatalf("expected one notification, got %d", got)
	}
	if f.metrics.archive[len(f.metrics.archive)-1] != OutcomeDuplicate {
		t.Fatalf("expected duplicate archive outcome, got %v", f.metrics.archive)
	}
}

func TestOrderProcessorDeleteIsBounded(t *testing.T) {
	f := newProcessorFixture(t, purchasedOrder("ord-1"))
	f.svc.deleteTimeout = 10 * time.Millisecond
	f.svc.orders = hangingDeleteOrders{f.orders}

	_, err := f.svc.ProcessOrder(context.Background(), "ord-1")
	var consistency *ConsistencyError
	if !errors.As(err, &consistency) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected bounded delete to surface a ConsistencyError, got %v", err)
	}
	if f.svc.guard.size() != 0 {
		t.Fatalf("order guard must be released after a hung delete")
	}
}

type hangingDeleteOrders struct{ *flakyOrders }

func (hangingDeleteOrders) Delete(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestOrderProcessorWaiterHonoursContext(t *testing.T) {
	f := newProcessorFixture(t, purchasedOrder("ord-1"))
	unlock, err := f.svc.guard.Lock(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.svc.ProcessOrder(ctx, "ord-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected waiting caller to give up with its context, got %v", err)
	}
	if len(f.sink.sent()) != 0 {
		t.Fatalf("no notification may be sent without the order guard")
	}
	if _, err := f.orders.FindByID(context.Background(), "ord-1"); err != nil {
		t.Fatalf("order must stay active: %v", err)
	}
}

func TestOrderProcessorBlockedEventPublisherIsBounded(t *testing.T) {
	f := newProcessorFixture(t, purchasedOrder("ord-1"))
	events := &blockingEvents{}
	f.svc.events = events
	f.svc.eventTimeout = 20 * time.Millisecond

	if _, err := f.svc.ProcessOrder(context.Background(), "ord-1"); err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	calls, hadDeadline := events.snapshot()
	if calls != 1 || !hadDeadline {
		t.Fatalf("expected one bounded publish, got calls=%d deadline=%v", calls, hadDeadline)
	}
	if _, ok := f.logger.find(eventOrderPublishFailed); !ok {
		t.Fatalf("expected publish timeout to be logged")
	}
}

func TestOrderProcessorConcurrentCallsArchiveOnce(t *testing.T) {
	f := newProcessorFixture(t, purchasedOrder("ord-1"))
	ctx := context.Background()

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		notFound  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ProcessOrder(ctx, "ord-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrNotFound):
				notFound++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || notFound != callers-1 {
		t.Fatalf("expected 1 success and %d not found, got %d/%d", callers-1, successes, notFound)
	}
	if got := len(f.sink.sent()); got != 1 {
		t.Fatalf("expected one notification, got %d", got)
	}
	if size := f.svc.guard.size(); size != 0 {
		t.Fatalf("expected guard to release all keys, got %d", size)
	}
}

func TestOrderProcessorResolvesLegacyOrders(t *testing.T) {
	legacy := domain.Order{
		ID:            "legacy-1",
		ProductID:     "lamp",
		Quantity:      3,
		ProductPrice:  domain.Int64Ptr(1000),
		CustomerEmail: "old@example.com",
	}
	f := newProcessorFixture(t, legacy)

	record, err := f.svc.ProcessOrder(context.Background(), "legacy-1")
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if record.Order.ItemTotal != 3000 {
		t.Fatalf("expected derived total 3000, got %d", record.Order.ItemTotal)
	}
	if record.Order.CustomerName != domain.DefaultText || record.Order.Pincode != domain.DefaultText {
		t.Fatalf("expected defaults, got %+v", record.Order)
	}
}
