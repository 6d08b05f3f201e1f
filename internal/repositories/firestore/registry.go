package firestore

import (
	"context"
	"errors"
	"time"

	pfirestore "github.com/artisan-market/api/internal/platform/firestore"
	"github.com/artisan-market/api/internal/repositories"
)

// Registry wires the Firestore repositories around one shared provider.
type Registry struct {
	provider   *pfirestore.Provider
	products   *ProductRepository
	orders     *OrderRepository
	profiles   *ProfileRepository
	archive    *ArchiveRepository
	dispatches *DispatchRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every Firestore repository around the provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	profiles, err := NewProfileRepository(provider)
	if err != nil {
		return nil, err
	}
	archive, err := NewArchiveRepository(provider)
	if err != nil {
		return nil, err
	}
	dispatches, err := NewDispatchRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:   provider,
		products:   products,
		orders:     orders,
		profiles:   profiles,
		archive:    archive,
		dispatches: dispatches,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Products() repositories.ProductRepository { return r.products }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Profiles() repositories.ProfileRepository { return r.profiles }

func (r *Registry) Archive() repositories.ArchiveRepository { return r.archive }

func (r *Registry) Dispatches() repositories.NotificationLedger { return r.dispatches }

func (r *Registry) HealthChecks() []repositories.DependencyCheck {
	return []repositories.DependencyCheck{{
		Name:    "firestore",
		Timeout: 2 * time.Second,
		Check: func(ctx context.Context) error {
			return r.provider.Ping(ctx, productsCollection)
		},
	}}
}
