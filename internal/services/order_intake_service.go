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
	eventOrderPlaced        = "orders.placed"
	eventOrderRollback      = "orders.rollback"
	eventOrderNotifyFailed  = "orders.notify_failed"
	eventOrderPublishFailed = "orders.publish_failed"

	stageIntakeRollback = "intake_rollback"

	defaultEventTimeout = 5 * time.Second
)

// OrderIntakeServiceDeps bundles the collaborators required to construct an order intake service.
type OrderIntakeServiceDeps struct {
	Products      repositories.ProductRepository
	Orders        repositories.OrderRepository
	Profiles      repositories.ProfileRepository
	Inventory     InventoryService
	Notifications NotificationService
	Events        OrderEventPublisher
	Metrics       FulfilmentMetrics
	NotifyTimeout time.Duration
	EventTimeout  time.Duration
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderIntakeService struct {
	products      repositories.ProductRepository
	orders        repositories.OrderRepository
	profiles      repositories.ProfileRepository
	inventory     InventoryService
	notifications NotificationService
	events        OrderEventPublisher
	metrics       FulfilmentMetrics
	notifyTimeout time.Duration
	eventTimeout  time.Duration
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

var _ OrderIntakeService = (*orderIntakeService)(nil)

// NewOrderIntakeService wires dependencies into a concrete OrderIntakeService implementation.
func NewOrderIntakeService(deps OrderIntakeServiceDeps) (OrderIntakeService, error) {
	switch {
	case deps.Products == nil:
		return nil, errors.New("order intake service: product repository is required")
	case deps.Orders == nil:
		return nil, errors.New("order intake service: order repository is required")
	case deps.Profiles == nil:
		return nil, errors.New("order intake service: profile repository is required")
	case deps.Inventory == nil:
		return nil, errors.New("order intake service: inventory service is required")
	case deps.Notifications == nil:
		return nil, errors.New("order intake service: notification service is required")
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
	notifyTimeout := deps.NotifyTimeout
	if notifyTimeout <= 0 {
		notifyTimeout = defaultNotifyTimeout
	}
	eventTimeout := deps.EventTimeout
	if eventTimeout <= 0 {
		eventTimeout = defaultEventTimeout
	}

	return &orderIntakeService{
		products:      deps.Products,
		orders:        deps.Orders,
		profiles:      deps.Profiles,
		inventory:     deps.Inventory,
		notifications: deps.Notifications,
		events:        deps.Events,
		metrics:       metrics,
		notifyTimeout: notifyTimeout,
		eventTimeout:  eventTimeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// appliedLine tracks the side effects of one line item so they can be compensated.
type appliedLine struct {
	productID string
	quantity  int
	orderID   string
	inserted  bool
}

func (s *orderIntakeService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Customer.Email))
	if email == "" {
		s.metrics.ObserveIntake(OutcomeRefused)
		return PlaceOrderResult{}, newValidationError("customer", "email is required")
	}
	items, err := normaliseLineItems(cmd.Items)
	if err != nil {
		s.metrics.ObserveIntake(OutcomeRefused)
		return PlaceOrderResult{}, err
	}

	profile, err := s.profiles.Get(ctx, email)
	if err != nil {
		if isRepoNotFound(err) {
			s.metrics.ObserveIntake(OutcomeRefused)
			return PlaceOrderResult{}, &ProfileIncompleteError{Email: email, Missing: []string{"phoneNumber"}}
		}
		return PlaceOrderResult{}, fmt.Errorf("load profile: %w", err)
	}
	if !profile.HasPhone() {
		s.metrics.ObserveIntake(OutcomeRefused)
		return PlaceOrderResult{}, &ProfileIncompleteError{Email: email, Missing: []string{"phoneNumber"}}
	}
	profile.Email = email
	if strings.TrimSpace(profile.Name) == "" {
		profile.Name = strings.TrimSpace(cmd.Customer.Name)
	}

	now := s.clock()
	result := PlaceOrderResult{CheckoutID: s.newID()}
	applied := make([]appliedLine, 0, len(items))

	for _, item := range items {
		product, err := s.products.Get(ctx, item.ProductID)
		if err != nil {
			if isRepoNotFound(err) {
				err = &NotFoundError{Resource: "product", ID: item.ProductID, Err: err}
			}
			return PlaceOrderResult{}, s.abort(ctx, applied, err)
		}

		reserved, err := s.inventory.TryReserve(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return PlaceOrderResult{}, s.abort(ctx, applied, err)
		}
		if !reserved {
			return PlaceOrderResult{}, s.abort(ctx, applied, &InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
			})
		}

		order := buildOrder(s.newID(), result.CheckoutID, item, product, profile, now)
		applied = append(applied, appliedLine{productID: item.ProductID, quantity: item.Quantity, orderID: order.ID})
		if err := s.orders.Insert(ctx, order); err != nil {
			return PlaceOrderResult{}, s.abort(ctx, applied, fmt.Errorf("insert order %s: %w", order.ID, err))
		}
		applied[len(applied)-1].inserted = true

		result.Orders = append(result.Orders, order)
		result.Breakdown.Add(domain.CheckoutLine{
			OrderID:   order.ID,
			ProductID: product.ID,
			Name:      product.Name,
			Category:  product.Category,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
			Total:     *order.ItemTotal,
		})
	}

	s.metrics.ObserveIntake(OutcomeSuccess)
	s.logger(ctx, eventOrderPlaced, map[string]any{
		"checkoutId": result.CheckoutID,
		"orderIds":   result.OrderIDs(),
		"total":      result.Breakdown.Total,
		"customer":   email,
	})

	notice := OrderPlacedNotice{
		CheckoutID: result.CheckoutID,
		Customer:   profile,
		Breakdown:  result.Breakdown,
		PlacedAt:   now,
	}
	notifyCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	notifyErr := s.notifications.NotifyOrderPlaced(notifyCtx, notice)
	cancel()

	// The orders are committed either way, so they are announced either way.
	s.publishPlaced(ctx, result, now)

	if notifyErr != nil {
		s.logger(ctx, eventOrderNotifyFailed, map[string]any{
			"checkoutId": result.CheckoutID,
			"orderIds":   result.OrderIDs(),
			"error":      notifyErr.Error(),
		})
		return result, &NotificationError{OrderIDs: result.OrderIDs(), Err: notifyErr}
	}
	return result, nil
}

// abort compensates every applied line in reverse order and returns cause, joined with any
// compensation failure as a ConsistencyError.
func (s *orderIntakeService) abort(ctx context.Context, applied []appliedLine, cause error) error {
	s.metrics.ObserveIntake(OutcomeFailure)
	if len(applied) == 0 {
		return cause
	}

	// Compensation must run even if the request was cancelled.
	ctx = context.WithoutCancel(ctx)
	var failures []error
	for i := len(applied) - 1; i >= 0; i-- {
		line := applied[i]
		if line.inserted {
			if err := s.orders.Delete(ctx, line.orderID); err != nil && !isRepoNotFound(err) {
				failures = append(failures, fmt.Errorf("delete order %s: %w", line.orderID, err))
			}
		}
		if err := s.inventory.Release(ctx, line.productID, line.quantity); err != nil {
			failures = append(failures, fmt.Errorf("release %d of %s: %w", line.quantity, line.productID, err))
		}
	}

	fields := map[string]any{
		"lines": len(applied),
		"cause": cause.Error(),
	}
	if len(failures) == 0 {
		s.logger(ctx, eventOrderRollback, fields)
		return cause
	}

	joined := errors.Join(append([]error{cause}, failures...)...)
	fields["severity"] = "error"
	fields["escalation"] = true
	fields["error"] = joined.Error()
	s.logger(ctx, eventOrderRollback, fields)
	s.metrics.ObserveConsistencyError(stageIntakeRollback)
	return &ConsistencyError{Stage: stageIntakeRollback, Err: joined}
}

// publishPlaced is best effort and bounded by eventTimeout, independent of the request deadline.
func (s *orderIntakeService) publishPlaced(ctx context.Context, result PlaceOrderResult, now time.Time) {
	if s.events == nil {
		return
	}
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.eventTimeout)
	defer cancel()
	for _, order := range result.Orders {
		event := OrderEvent{
			ID:            s.newID(),
			Type:          EventOrderPlaced,
			OrderID:       order.ID,
			CheckoutID:    order.CheckoutID,
			CustomerEmail: order.CustomerEmail,
			ProductID:     order.ProductID,
			Quantity:      order.Quantity,
			ItemTotal:     *order.ItemTotal,
			OccurredAt:    now,
		}
		if err := s.events.PublishOrderEvent(publishCtx, event); err != nil {
			s.logger(ctx, eventOrderPublishFailed, map[string]any{
				"orderId": order.ID,
				"type":    event.Type,
				"error":   err.Error(),
			})
		}
	}
}

func normaliseLineItems(items []LineItem) ([]LineItem, error) {
	if len(items) == 0 {
		return nil, newValidationError("items", "at least one item is required")
	}
	out := make([]LineItem, 0, len(items))
	for i, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, newValidationError(fmt.Sprintf("items[%d].productId", i), "is required")
		}
		if item.Quantity <= 0 {
			return nil, newValidationError(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
		out = append(out, LineItem{ProductID: productID, Quantity: item.Quantity})
	}
	return out, nil
}

func buildOrder(id, checkoutID string, item LineItem, product domain.Product, profile CustomerProfile, now time.Time) Order {
	return Order{
		ID:              id,
		CheckoutID:      checkoutID,
		ProductID:       item.ProductID,
		Quantity:        item.Quantity,
		ProductName:     domain.StringPtr(product.Name),
		ProductCategory: domain.StringPtr(product.Category),
		ProductPrice:    domain.Int64Ptr(product.Price),
		CustomerEmail:   strings.ToLower(strings.TrimSpace(profile.Email)),
		CustomerName:    domain.StringPtr(profile.Name),
		PhoneNumber:     domain.StringPtr(profile.PhoneNumber),
		DeliveryAddress: domain.StringPtr(profile.Address),
		City:            domain.StringPtr(profile.City),
		State:           domain.StringPtr(profile.State),
		Pincode:         domain.StringPtr(profile.Pincode),
		ItemTotal:       domain.Int64Ptr(domain.LineTotal(product.Price, item.Quantity)),
		Status:          domain.OrderStatusPurchased,
		CreatedAt:       now,
	}
}
