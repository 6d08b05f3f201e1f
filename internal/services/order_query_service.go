package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories"
)

// OrderQueryServiceDeps bundles the collaborators required to construct an order query service.
type OrderQueryServiceDeps struct {
	Products repositories.ProductRepository
	Orders   repositories.OrderRepository
}

type orderQueryService struct {
	products repositories.ProductRepository
	orders   repositories.OrderRepository
}

var _ OrderQueryService = (*orderQueryService)(nil)

// NewOrderQueryService constructs the read side of the order workflows.
func NewOrderQueryService(deps OrderQueryServiceDeps) (OrderQueryService, error) {
	if deps.Products == nil {
		return nil, errors.New("order query service: product repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("order query service: order repository is required")
	}
	return &orderQueryService{products: deps.Products, orders: deps.Orders}, nil
}

// ListCustomerOrders returns the customer's active orders with the current catalog name, price
// and image. The order snapshot is used when the product no longer exists.
func (s *orderQueryService) ListCustomerOrders(ctx context.Context, email string) ([]CustomerOrderView, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, newValidationError("email", "is required")
	}

	orders, err := s.orders.ListByCustomer(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list customer orders: %w", err)
	}

	catalog := make(map[string]*domain.Product)
	views := make([]CustomerOrderView, 0, len(orders))
	for _, order := range orders {
		resolved := domain.ResolveDefaults(order)
		view := CustomerOrderView{
			Order: resolved,
			Name:  resolved.ProductName,
			Price: resolved.ProductPrice,
		}

		product, seen := catalog[order.ProductID]
		if !seen {
			current, err := s.products.Get(ctx, order.ProductID)
			switch {
			case err == nil:
				product = &current
			case !isRepoNotFound(err):
				return nil, fmt.Errorf("load product %s: %w", order.ProductID, err)
			}
			catalog[order.ProductID] = product
		}
		if product != nil {
			view.Name = product.Name
			view.Price = product.Price
			view.ImageURL = product.ImageURL
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *orderQueryService) ListActiveOrders(ctx context.Context) ([]ResolvedOrder, error) {
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]ResolvedOrder, 0, len(orders))
	for _, order := range orders {
		out = append(out, domain.ResolveDefaults(order))
	}
	return out, nil
}
