package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/artisan-market/api/internal/domain"
	pfirestore "github.com/artisan-market/api/internal/platform/firestore"
	"github.com/artisan-market/api/internal/repositories"
)

const (
	productsCollection   = "products"
	reserveTxAttempts    = 10
	reserveTxTimeout     = 10 * time.Second
	productFieldStock    = "stock"
	productFieldVersion  = "version"
	productFieldUpdateAt = "updatedAt"
)

// ProductRepository persists catalog entries and applies stock reservations transactionally.
type ProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.Collection[productDocument]
	now      func() time.Time
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewCollection[productDocument](provider, productsCollection)
	return &ProductRepository{provider: provider, base: base, now: time.Now}, nil
}

func (r *ProductRepository) Get(ctx context.Context, productID string) (domain.Product, error) {
	if strings.TrimSpace(productID) == "" {
		return domain.Product{}, errors.New("product id is required")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	docs, err := r.base.Query(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Upsert writes catalog fields and stock, bumping the version inside a transaction.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) (domain.Product, error) {
	if strings.TrimSpace(product.ID) == "" {
		return domain.Product{}, errors.New("product id is required")
	}
	if product.Stock < 0 {
		return domain.Product{}, fmt.Errorf("product %s: stock must be >= 0", product.ID)
	}

	now := r.now().UTC()
	var saved domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.Doc(ctx, product.ID)
		if err != nil {
			return err
		}
		version := int64(1)
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var existing productDocument
			if err := snap.DataTo(&existing); err != nil {
				return fmt.Errorf("decode product %s: %w", product.ID, err)
			}
			version = existing.Version + 1
		case status.Code(err) != codes.NotFound:
			return err
		}

		doc := newProductDocument(product)
		doc.Version = version
		doc.UpdatedAt = now
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		saved = doc.toDomain(product.ID)
		return nil
	}, pfirestore.WithTxName("products.upsert"))
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.upsert", err)
	}
	return saved, nil
}

// TryReserve decrements stock inside a Firestore transaction. Concurrent reservations on the same
// product conflict and are retried by the client, so the stock check and the decrement are
// observed atomically.
func (r *ProductRepository) TryReserve(ctx context.Context, productID string, qty int) (domain.Product, error) {
	if qty <= 0 {
		return domain.Product{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, productID, fmt.Sprintf("quantity for %s must be > 0", productID), nil)
	}

	now := r.now().UTC()
	var reserved domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.Doc(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, productID, fmt.Sprintf("product %s not found", productID), err)
			}
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}
		if doc.Stock < qty {
			return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, productID, fmt.Sprintf("insufficient stock for %s", productID), nil)
		}
		doc.Stock -= qty
		doc.Version++
		doc.UpdatedAt = now
		if err := tx.Update(ref, []firestore.Update{
			{Path: productFieldStock, Value: doc.Stock},
			{Path: productFieldVersion, Value: doc.Version},
			{Path: productFieldUpdateAt, Value: now},
		}); err != nil {
			return err
		}
		reserved = doc.toDomain(productID)
		return nil
	}, pfirestore.WithTxName("products.tryReserve"), pfirestore.WithTxAttempts(reserveTxAttempts), pfirestore.WithTxTimeout(reserveTxTimeout))
	if err != nil {
		return domain.Product{}, wrapInventoryError("products.tryReserve", err)
	}
	return reserved, nil
}

// Release increments stock with a server-side transform.
func (r *ProductRepository) Release(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, productID, fmt.Sprintf("quantity for %s must be > 0", productID), nil)
	}
	err := r.base.Update(ctx, productID, []firestore.Update{
		{Path: productFieldStock, Value: firestore.Increment(qty)},
		{Path: productFieldVersion, Value: firestore.Increment(1)},
		{Path: productFieldUpdateAt, Value: r.now().UTC()},
	})
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, productID, fmt.Sprintf("product %s not found", productID), err)
		}
		return wrapInventoryError("products.release", err)
	}
	return nil
}

type productDocument struct {
	Name      string    `firestore:"name"`
	Category  string    `firestore:"category"`
	ImageURL  string    `firestore:"imageUrl"`
	Price     int64     `firestore:"price"`
	Stock     int       `firestore:"stock"`
	Version   int64     `firestore:"version"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newProductDocument(product domain.Product) productDocument {
	return productDocument{
		Name:      strings.TrimSpace(product.Name),
		Category:  strings.TrimSpace(product.Category),
		ImageURL:  strings.TrimSpace(product.ImageURL),
		Price:     product.Price,
		Stock:     product.Stock,
		Version:   product.Version,
		UpdatedAt: product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:        id,
		Name:      d.Name,
		Category:  d.Category,
		ImageURL:  d.ImageURL,
		Price:     d.Price,
		Stock:     d.Stock,
		Version:   d.Version,
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
