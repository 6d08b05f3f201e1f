package services

import (
	"context"
	"errors"
	"strings"

	"github.com/artisan-market/api/internal/repositories"
)

const (
	eventInventoryReserve = "inventory.reserve"
	eventInventoryRelease = "inventory.release"
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Products repositories.ProductRepository
	Metrics  FulfilmentMetrics
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	products repositories.ProductRepository
	metrics  FulfilmentMetrics
	logger   func(context.Context, string, map[string]any)
}

var _ InventoryService = (*inventoryService)(nil)

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Products == nil {
		return nil, errors.New("inventory service: product repository is required")
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		products: deps.Products,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

func (s *inventoryService) TryReserve(ctx context.Context, productID string, qty int) (bool, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return false, newValidationError("productId", "is required")
	}
	if qty <= 0 {
		return false, newValidationError("quantity", "must be positive")
	}

	product, err := s.products.TryReserve(ctx, productID, qty)
	if err != nil {
		if repositories.IsInsufficientStock(err) {
			s.metrics.ObserveReservation(OutcomeRefused)
			s.logger(ctx, eventInventoryReserve, map[string]any{
				"productId": productID,
				"quantity":  qty,
				"outcome":   OutcomeRefused,
			})
			return false, nil
		}
		s.metrics.ObserveReservation(OutcomeFailure)
		return false, mapInventoryError(productID, err)
	}

	s.metrics.ObserveReservation(OutcomeSuccess)
	s.logger(ctx, eventInventoryReserve, map[string]any{
		"productId": productID,
		"quantity":  qty,
		"remaining": product.Stock,
		"outcome":   OutcomeSuccess,
	})
	return true, nil
}

func (s *inventoryService) Release(ctx context.Context, productID string, qty int) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return newValidationError("productId", "is required")
	}
	if qty <= 0 {
		return newValidationError("quantity", "must be positive")
	}
	if err := s.products.Release(ctx, productID, qty); err != nil {
		return mapInventoryError(productID, err)
	}
	s.logger(ctx, eventInventoryRelease, map[string]any{
		"productId": productID,
		"quantity":  qty,
	})
	return nil
}

func mapInventoryError(productID string, err error) error {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorProductNotFound:
			return &NotFoundError{Resource: "product", ID: productID, Err: err}
		case repositories.InventoryErrorInvalidQuantity:
			return newValidationError("quantity", "%s", invErr.Message)
		}
	}
	if isRepoNotFound(err) {
		return &NotFoundError{Resource: "product", ID: productID, Err: err}
	}
	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
