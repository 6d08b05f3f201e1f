package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories"
)

const (
	defaultNotifyTimeout  = 10 * time.Second
	defaultArchiveTimeout = 10 * time.Second
	defaultDeleteTimeout  = 10 * time.Second

	eventOrderProcessed     = "orders.processed"
	eventOrderNotifySkipped = "orders.notify_skipped"
	eventLedgerRecordFailed = "orders.ledger_record_failed"
	eventOrderArchiveFailed = "orders.archive_failed"
	eventOrderConsistency   = "orders.consistency_error"

	stageDelete = "delete"
)

// OrderProcessorServiceDeps bundles the collaborators required to construct an order processor.
type OrderProcessorServiceDeps struct {
	Orders         repositories.OrderRepository
	Archive        repositories.ArchiveRepository
	Ledger         repositories.NotificationLedger
	Notifications  NotificationService
	Events         OrderEventPublisher
	Metrics        FulfilmentMetrics
	NotifyTimeout  time.Duration
	ArchiveTimeout time.Duration
	DeleteTimeout  time.Duration
	EventTimeout   time.Duration
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type orderProcessorService struct {
	orders         repositories.OrderRepository
	archive        repositories.ArchiveRepository
	ledger         repositories.NotificationLedger
	notifications  NotificationService
	events         OrderEventPublisher
	metrics        FulfilmentMetrics
	notifyTimeout  time.Duration
	archiveTimeout time.Duration
	deleteTimeout  time.Duration
	eventTimeout   time.Duration
	clock          func() time.Time
	newID          func() string
	logger         func(context.Context, string, map[string]any)
	guard          *keyedMutex
}

var _ OrderProcessorService = (*orderProcessorService)(nil)

// NewOrderProcessorService wires dependencies into a concrete OrderProcessorService implementation.
func NewOrderProcessorService(deps OrderProcessorServiceDeps) (OrderProcessorService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order processor service: order repository is required")
	case deps.Archive == nil:
		return nil, errors.New("order processor service: archive repository is required")
	case deps.Ledger == nil:
		return nil, errors.New("order processor service: notification ledger is required")
	case deps.Notifications == nil:
		return nil, errors.New("order processor service: notification service is required")
	}

	notifyTimeout := deps.NotifyTimeout
	if notifyTimeout <= 0 {
		notifyTimeout = defaultNotifyTimeout
	}
	archiveTimeout := deps.ArchiveTimeout
	if archiveTimeout <= 0 {
		archiveTimeout = defaultArchiveTimeout
	}
	deleteTimeout := deps.DeleteTimeout
	if deleteTimeout <= 0 {
		deleteTimeout = defaultDeleteTimeout
	}
	eventTimeout := deps.EventTimeout
	if eventTimeout <= 0 {
		eventTimeout = defaultEventTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderProcessorService{
		orders:         deps.Orders,
		archive:        deps.Archive,
		ledger:         deps.Ledger,
		notifications:  deps.Notifications,
		events:         deps.Events,
		metrics:        metrics,
		notifyTimeout:  notifyTimeout,
		archiveTimeout: archiveTimeout,
		deleteTimeout:  deleteTimeout,
		eventTimeout:   eventTimeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
		guard:  newKeyedMutex(),
	}, nil
}

// ProcessOrder notifies the customer, archives the order and removes it from the active set.
// Each step runs only after the previous one succeeded; a failure before deletion leaves the
// order untouched so the call can be retried.
func (s *orderProcessorService) ProcessOrder(ctx context.Context, orderID string) (ArchiveRecord, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return ArchiveRecord{}, newValidationError("orderId", "is required")
	}

	started := s.clock()
	unlock, err := s.guard.Lock(ctx, orderID)
	if err != nil {
		s.metrics.ObserveProcessing(OutcomeFailure, s.clock().Sub(started))
		return ArchiveRecord{}, fmt.Errorf("wait for order %s: %w", orderID, err)
	}
	defer unlock()

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			s.metrics.ObserveProcessing(OutcomeRefused, s.clock().Sub(started))
			return ArchiveRecord{}, &NotFoundError{Resource: "order", ID: orderID, Err: err}
		}
		s.metrics.ObserveProcessing(OutcomeFailure, s.clock().Sub(started))
		return ArchiveRecord{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	resolved := domain.ResolveDefaults(order)

	if err := s.notifyProcessed(ctx, resolved); err != nil {
		s.metrics.ObserveProcessing(OutcomeFailure, s.clock().Sub(started))
		return ArchiveRecord{}, &NotificationError{OrderIDs: []string{orderID}, Err: err}
	}

	processedAt := s.clock()
	archived := resolved
	archived.Status = domain.OrderStatusProcessed
	record := ArchiveRecord{
		Order:       archived,
		Month:       domain.ArchiveMonth(processedAt),
		ProcessedAt: processedAt,
	}

	archiveCtx, cancel := context.WithTimeout(ctx, s.archiveTimeout)
	stored, created, err := s.archive.Append(archiveCtx, record)
	cancel()
	if err != nil {
		s.metrics.ObserveArchive(OutcomeFailure)
		s.metrics.ObserveProcessing(OutcomeFailure, s.clock().Sub(started))
		s.logger(ctx, eventOrderArchiveFailed, map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		return ArchiveRecord{}, &ArchivalError{OrderID: orderID, Err: err}
	}
	if created {
		s.metrics.ObserveArchive(OutcomeSuccess)
	} else {
		s.metrics.ObserveArchive(OutcomeDuplicate)
	}

	// The order is archived; removal must complete even if the caller goes away.
	deleteCtx, cancelDelete := context.WithTimeout(context.WithoutCancel(ctx), s.deleteTimeout)
	err = s.orders.Delete(deleteCtx, orderID)
	cancelDelete()
	if err != nil && !isRepoNotFound(err) {
		s.metrics.ObserveConsistencyError(stageDelete)
		s.metrics.ObserveProcessing(OutcomeFailure, s.clock().Sub(started))
		s.logger(ctx, eventOrderConsistency, map[string]any{
			"severity":   "error",
			"escalation": true,
			"orderId":    orderID,
			"month":      stored.Month,
			"stage":      stageDelete,
			"error":      err.Error(),
		})
		return stored, &ConsistencyError{OrderID: orderID, Stage: stageDelete, Err: err}
	}

	s.publishProcessed(ctx, stored)
	elapsed := s.clock().Sub(started)
	s.metrics.ObserveProcessing(OutcomeSuccess, elapsed)
	s.logger(ctx, eventOrderProcessed, map[string]any{
		"orderId":  orderID,
		"month":    stored.Month,
		"archived": created,
		"elapsed":  elapsed.String(),
	})
	return stored, nil
}

func (s *orderProcessorService) notifyProcessed(ctx context.Context, order ResolvedOrder) error {
	dispatch, found, err := s.ledger.Lookup(ctx, order.ID, domain.NotificationOrderProcessed)
	if err != nil {
		return fmt.Errorf("lookup dispatch: %w", err)
	}
	if found {
		s.logger(ctx, eventOrderNotifySkipped, map[string]any{
			"orderId":   order.ID,
			"messageId": dispatch.MessageID,
			"sentAt":    dispatch.SentAt,
		})
		return nil
	}

	notifyCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	messageID, err := s.notifications.NotifyOrderProcessed(notifyCtx, order)
	cancel()
	if err != nil {
		return err
	}

	record := domain.NotificationDispatch{
		OrderID:   order.ID,
		Kind:      domain.NotificationOrderProcessed,
		MessageID: messageID,
		SentAt:    s.clock(),
	}
	if err := s.ledger.Record(context.WithoutCancel(ctx), record); err != nil {
		// The message went out; a retry may resend it but the workflow can continue.
		s.logger(ctx, eventLedgerRecordFailed, map[string]any{
			"severity": "warning",
			"orderId":  order.ID,
			"error":    err.Error(),
		})
	}
	return nil
}

func (s *orderProcessorService) publishProcessed(ctx context.Context, record ArchiveRecord) {
	if s.events == nil {
		return
	}
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.eventTimeout)
	defer cancel()
	event := OrderEvent{
		ID:            s.newID(),
		Type:          EventOrderProcessed,
		OrderID:       record.Order.ID,
		CheckoutID:    record.Order.CheckoutID,
		CustomerEmail: record.Order.CustomerEmail,
		ProductID:     record.Order.ProductID,
		Quantity:      record.Order.Quantity,
		ItemTotal:     record.Order.ItemTotal,
		Month:         record.Month,
		OccurredAt:    record.ProcessedAt,
	}
	if err := s.events.PublishOrderEvent(publishCtx, event); err != nil {
		s.logger(ctx, eventOrderPublishFailed, map[string]any{
			"orderId": record.Order.ID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}
