package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/artisan-market/api/internal/domain"
	pfirestore "github.com/artisan-market/api/internal/platform/firestore"
	"github.com/artisan-market/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists active orders. Snapshot fields are nullable so that documents written
// before a field existed decode into nil pointers.
type OrderRepository struct {
	base *pfirestore.Collection[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{base: pfirestore.NewCollection[orderDocument](provider, ordersCollection)}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}
	err := r.base.Create(ctx, order.ID, newOrderDocument(order))
	return err
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID, doc.CreateTime), nil
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if strings.TrimSpace(orderID) == "" {
		return errors.New("order id is required")
	}
	return r.base.Delete(ctx, orderID)
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, email string) ([]domain.Order, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("customer email is required")
	}
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("customerEmail", "==", email)
	})
}

func (r *OrderRepository) ListAll(ctx context.Context) ([]domain.Order, error) {
	return r.list(ctx, nil)
}

// list sorts client-side so the customer filter needs no composite index.
func (r *OrderRepository) list(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, build)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID, doc.CreateTime))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type orderDocument struct {
	CheckoutID      string    `firestore:"checkoutId"`
	ProductID       string    `firestore:"productId"`
	Quantity        int       `firestore:"quantity"`
	ProductName     *string   `firestore:"productName"`
	ProductCategory *string   `firestore:"productCategory"`
	ProductPrice    *int64    `firestore:"productPrice"`
	CustomerEmail   string    `firestore:"customerEmail"`
	CustomerName    *string   `firestore:"customerName"`
	PhoneNumber     *string   `firestore:"phoneNumber"`
	DeliveryAddress *string   `firestore:"deliveryAddress"`
	City            *string   `firestore:"city"`
	State           *string   `firestore:"state"`
	Pincode         *string   `firestore:"pincode"`
	ItemTotal       *int64    `firestore:"itemTotal"`
	Status          string    `firestore:"status"`
	CreatedAt       time.Time `firestore:"createdAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		CheckoutID:      order.CheckoutID,
		ProductID:       order.ProductID,
		Quantity:        order.Quantity,
		ProductName:     order.ProductName,
		ProductCategory: order.ProductCategory,
		ProductPrice:    order.ProductPrice,
		CustomerEmail:   strings.ToLower(strings.TrimSpace(order.CustomerEmail)),
		CustomerName:    order.CustomerName,
		PhoneNumber:     order.PhoneNumber,
		DeliveryAddress: order.DeliveryAddress,
		City:            order.City,
		State:           order.State,
		Pincode:         order.Pincode,
		ItemTotal:       order.ItemTotal,
		Status:          string(order.Status),
		CreatedAt:       order.CreatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string, createTime time.Time) domain.Order {
	created := d.CreatedAt
	if created.IsZero() {
		created = createTime
	}
	return domain.Order{
		ID:              id,
		CheckoutID:      d.CheckoutID,
		ProductID:       d.ProductID,
		Quantity:        d.Quantity,
		ProductName:     d.ProductName,
		ProductCategory: d.ProductCategory,
		ProductPrice:    d.ProductPrice,
		CustomerEmail:   d.CustomerEmail,
		CustomerName:    d.CustomerName,
		PhoneNumber:     d.PhoneNumber,
		DeliveryAddress: d.DeliveryAddress,
		City:            d.City,
		State:           d.State,
		Pincode:         d.Pincode,
		ItemTotal:       d.ItemTotal,
		Status:          domain.OrderStatus(d.Status),
		CreatedAt:       created.UTC(),
	}
}
