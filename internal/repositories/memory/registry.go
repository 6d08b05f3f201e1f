package memory

import (
	"context"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories"
)

// Registry bundles the in-memory stores for local development and tests.
type Registry struct {
	products   *ProductStore
	orders     *OrderStore
	profiles   *ProfileStore
	archive    *ArchiveStore
	dispatches *DispatchLedger
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs a registry with empty stores, optionally seeded with products.
func NewRegistry(products ...domain.Product) *Registry {
	return &Registry{
		products:   NewProductStore(products...),
		orders:     NewOrderStore(),
		profiles:   NewProfileStore(),
		archive:    NewArchiveStore(),
		dispatches: NewDispatchLedger(),
	}
}

func (r *Registry) Close(context.Context) error { return nil }

func (r *Registry) Products() repositories.ProductRepository { return r.products }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Profiles() repositories.ProfileRepository { return r.profiles }

func (r *Registry) Archive() repositories.ArchiveRepository { return r.archive }

func (r *Registry) Dispatches() repositories.NotificationLedger { return r.dispatches }

func (r *Registry) HealthChecks() []repositories.DependencyCheck {
	return []repositories.DependencyCheck{{
		Name:  "memory",
		Check: func(context.Context) error { return nil },
	}}
}
