package repositories

import (
	"context"

	domain "github.com/artisan-market/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Orders() OrderRepository
	Profiles() ProfileRepository
	Archive() ArchiveRepository
	Dispatches() NotificationLedger
	// HealthChecks lists the readiness probes of the backing store.
	HealthChecks() []DependencyCheck
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository reads catalog entries and owns the stock counter of each product.
type ProductRepository interface {
	Get(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) (domain.Product, error)
	// TryReserve decrements stock by qty only when at least qty units remain. It returns
	// an InventoryError with InventoryErrorInsufficientStock when the decrement is refused.
	TryReserve(ctx context.Context, productID string, qty int) (domain.Product, error)
	// Release returns qty units to stock. It is used for compensation only.
	Release(ctx context.Context, productID string, qty int) error
}

// OrderRepository persists active order records.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	Delete(ctx context.Context, orderID string) error
	ListByCustomer(ctx context.Context, email string) ([]domain.Order, error)
	ListAll(ctx context.Context) ([]domain.Order, error)
}

// ProfileRepository stores customer identity and contact details keyed by email.
type ProfileRepository interface {
	Get(ctx context.Context, email string) (domain.CustomerProfile, error)
	Upsert(ctx context.Context, profile domain.CustomerProfile) (domain.CustomerProfile, error)
}

// ArchiveRepository holds write-once records of processed orders partitioned by month.
type ArchiveRepository interface {
	// Append stores the record unless one already exists for the order. The stored record
	// is returned together with created=false in that case.
	Append(ctx context.Context, record domain.ArchiveRecord) (stored domain.ArchiveRecord, created bool, err error)
	Get(ctx context.Context, orderID string) (domain.ArchiveRecord, error)
	ListMonths(ctx context.Context) ([]domain.ArchiveMonthSummary, error)
	ListByMonth(ctx context.Context, month string) ([]domain.ArchiveRecord, error)
}

// NotificationLedger records successful notification dispatches so retries never resend.
type NotificationLedger interface {
	Lookup(ctx context.Context, orderID string, kind domain.NotificationKind) (domain.NotificationDispatch, bool, error)
	Record(ctx context.Context, dispatch domain.NotificationDispatch) error
}

// HealthRepository aggregates dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
