package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories"
)

// OrderStore keeps active orders in memory.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

var _ repositories.OrderRepository = (*OrderStore)(nil)

// NewOrderStore constructs an empty order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]domain.Order)}
}

func (s *OrderStore) Insert(_ context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("orders.insert: id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return conflict("orders.insert", order.ID)
	}
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *OrderStore) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.get", orderID)
	}
	return cloneOrder(order), nil
}

func (s *OrderStore) Delete(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[orderID]; !ok {
		return notFound("orders.delete", orderID)
	}
	delete(s.orders, orderID)
	return nil
}

func (s *OrderStore) ListByCustomer(_ context.Context, email string) ([]domain.Order, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.collect(func(order domain.Order) bool {
		return strings.EqualFold(order.CustomerEmail, email)
	}), nil
}

func (s *OrderStore) ListAll(_ context.Context) ([]domain.Order, error) {
	return s.collect(nil), nil
}

func (s *OrderStore) collect(match func(domain.Order) bool) []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if match == nil || match(order) {
			out = append(out, cloneOrder(order))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func cloneOrder(order domain.Order) domain.Order {
	clone := order
	clone.ProductName = cloneString(order.ProductName)
	clone.ProductCategory = cloneString(order.ProductCategory)
	clone.ProductPrice = cloneInt64(order.ProductPrice)
	clone.CustomerName = cloneString(order.CustomerName)
	clone.PhoneNumber = cloneString(order.PhoneNumber)
	clone.DeliveryAddress = cloneString(order.DeliveryAddress)
	clone.City = cloneString(order.City)
	clone.State = cloneString(order.State)
	clone.Pincode = cloneString(order.Pincode)
	clone.ItemTotal = cloneInt64(order.ItemTotal)
	return clone
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func cloneInt64(value *int64) *int64 {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
