package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories"
)

// ProductStore keeps catalog entries and stock counters in memory. Reservations are serialised
// by a single mutex, and every successful mutation bumps the product version.
type ProductStore struct {
	mu       sync.Mutex
	products map[string]domain.Product
	now      func() time.Time
}

var _ repositories.ProductRepository = (*ProductStore)(nil)

// NewProductStore constructs a store seeded with the given products.
func NewProductStore(seed ...domain.Product) *ProductStore {
	store := &ProductStore{
		products: make(map[string]domain.Product, len(seed)),
		now:      time.Now,
	}
	for _, product := range seed {
		store.products[product.ID] = product
	}
	return store
}

func (s *ProductStore) Get(_ context.Context, productID string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[strings.TrimSpace(productID)]
	if !ok {
		return domain.Product{}, notFound("products.get", productID)
	}
	return product, nil
}

func (s *ProductStore) List(_ context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, product := range s.products {
		out = append(out, product)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *ProductStore) Upsert(_ context.Context, product domain.Product) (domain.Product, error) {
	if strings.TrimSpace(product.ID) == "" {
		return domain.Product{}, errors.New("products.upsert: id is required")
	}
	if product.Stock < 0 {
		return domain.Product{}, fmt.Errorf("products.upsert: stock for %s must be >= 0", product.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.products[product.ID]; ok {
		product.Version = existing.Version + 1
	} else {
		product.Version = 1
	}
	product.UpdatedAt = s.now().UTC()
	s.products[product.ID] = product
	return product, nil
}

func (s *ProductStore) TryReserve(_ context.Context, productID string, qty int) (domain.Product, error) {
	if qty <= 0 {
		return domain.Product{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, productID, fmt.Sprintf("quantity for %s must be > 0", productID), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, productID, fmt.Sprintf("product %s not found", productID), nil)
	}
	if product.Stock < qty {
		return domain.Product{}, repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, productID, fmt.Sprintf("insufficient stock for %s", productID), nil)
	}
	product.Stock -= qty
	product.Version++
	product.UpdatedAt = s.now().UTC()
	s.products[productID] = product
	return product, nil
}

func (s *ProductStore) Release(_ context.Context, productID string, qty int) error {
	if qty <= 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, productID, fmt.Sprintf("quantity for %s must be > 0", productID), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, productID, fmt.Sprintf("product %s not found", productID), nil)
	}
	product.Stock += qty
	product.Version++
	product.UpdatedAt = s.now().UTC()
	s.products[productID] = product
	return nil
}
