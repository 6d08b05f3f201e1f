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
	archiveCollection       = "orderArchives"
	archiveMonthsCollection = "orderArchiveMonths"
)

// ArchiveRepository stores processed orders under orderArchives/{orderID}. A per-month summary
// document is maintained in the same transaction so reports can be listed without a scan.
type ArchiveRepository struct {
	provider *pfirestore.Provider
	records  *pfirestore.Collection[archiveDocument]
	months   *pfirestore.Collection[archiveMonthDocument]
}

var _ repositories.ArchiveRepository = (*ArchiveRepository)(nil)

// NewArchiveRepository constructs a Firestore-backed archive.
func NewArchiveRepository(provider *pfirestore.Provider) (*ArchiveRepository, error) {
	if provider == nil {
		return nil, errors.New("archive repository requires firestore provider")
	}
	return &ArchiveRepository{
		provider: provider,
		records:  pfirestore.NewCollection[archiveDocument](provider, archiveCollection),
		months:   pfirestore.NewCollection[archiveMonthDocument](provider, archiveMonthsCollection),
	}, nil
}

func (r *ArchiveRepository) Append(ctx context.Context, record domain.ArchiveRecord) (domain.ArchiveRecord, bool, error) {
	orderID := strings.TrimSpace(record.OrderID())
	if orderID == "" {
		return domain.ArchiveRecord{}, false, errors.New("archive append: order id is required")
	}
	record.ProcessedAt = record.ProcessedAt.UTC()
	if record.Month == "" {
		record.Month = domain.ArchiveMonth(record.ProcessedAt)
	}

	var (
		stored  domain.ArchiveRecord
		created bool
	)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false
		recordRef, err := r.records.Doc(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(recordRef)
		if err == nil {
			var existing archiveDocument
			if err := snap.DataTo(&existing); err != nil {
				return fmt.Errorf("decode archive record %s: %w", orderID, err)
			}
			stored = existing.toDomain()
			return nil
		}
		if status.Code(err) != codes.NotFound {
			return err
		}

		monthRef, err := r.months.Doc(ctx, record.Month)
		if err != nil {
			return err
		}
		if err := tx.Create(recordRef, newArchiveDocument(record)); err != nil {
			return err
		}
		if err := tx.Set(monthRef, map[string]any{
			"month":     record.Month,
			"records":   firestore.Increment(1),
			"updatedAt": record.ProcessedAt,
		}, firestore.MergeAll); err != nil {
			return err
		}
		stored = record
		created = true
		return nil
	}, pfirestore.WithTxName("orderArchives.append"))
	if err != nil {
		return domain.ArchiveRecord{}, false, pfirestore.WrapError("orderArchives.append", err)
	}
	return stored, created, nil
}

func (r *ArchiveRepository) Get(ctx context.Context, orderID string) (domain.ArchiveRecord, error) {
	doc, err := r.records.Get(ctx, orderID)
	if err != nil {
		return domain.ArchiveRecord{}, err
	}
	return doc.Data.toDomain(), nil
}

func (r *ArchiveRepository) ListMonths(ctx context.Context) ([]domain.ArchiveMonthSummary, error) {
	docs, err := r.months.Query(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ArchiveMonthSummary, 0, len(docs))
	for _, doc := range docs {
		if doc.Data.Records <= 0 {
			continue
		}
		out = append(out, domain.ArchiveMonthSummary{Month: doc.ID, Records: int(doc.Data.Records)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out, nil
}

func (r *ArchiveRepository) ListByMonth(ctx context.Context, month string) ([]domain.ArchiveRecord, error) {
	docs, err := r.records.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("month", "==", month)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.ArchiveRecord, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProcessedAt.Equal(out[j].ProcessedAt) {
			return out[i].OrderID() < out[j].OrderID()
		}
		return out[i].ProcessedAt.Before(out[j].ProcessedAt)
	})
	return out, nil
}

type archiveMonthDocument struct {
	Month     string    `firestore:"month"`
	Records   int64     `firestore:"records"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type archiveDocument struct {
	OrderID         string    `firestore:"orderId"`
	CheckoutID      string    `firestore:"checkoutId"`
	ProductID       string    `firestore:"productId"`
	Quantity        int       `firestore:"quantity"`
	ProductName     string    `firestore:"productName"`
	ProductCategory string    `firestore:"productCategory"`
	ProductPrice    int64     `firestore:"productPrice"`
	CustomerEmail   string    `firestore:"customerEmail"`
	CustomerName    string    `firestore:"customerName"`
	PhoneNumber     string    `firestore:"phoneNumber"`
	DeliveryAddress string    `firestore:"deliveryAddress"`
	City            string    `firestore:"city"`
	State           string    `firestore:"state"`
	Pincode         string    `firestore:"pincode"`
	ItemTotal       int64     `firestore:"itemTotal"`
	OrderStatus     string    `firestore:"orderStatus"`
	OrderedAt       time.Time `firestore:"orderedAt"`
	Month           string    `firestore:"month"`
	ProcessedAt     time.Time `firestore:"processedAt"`
}

func newArchiveDocument(record domain.ArchiveRecord) archiveDocument {
	o := record.Order
	return archiveDocument{
		OrderID:         o.ID,
		CheckoutID:      o.CheckoutID,
		ProductID:       o.ProductID,
		Quantity:        o.Quantity,
		ProductName:     o.ProductName,
		ProductCategory: o.ProductCategory,
		ProductPrice:    o.ProductPrice,
		CustomerEmail:   o.CustomerEmail,
		CustomerName:    o.CustomerName,
		PhoneNumber:     o.PhoneNumber,
		DeliveryAddress: o.DeliveryAddress,
		City:            o.City,
		State:           o.State,
		Pincode:         o.Pincode,
		ItemTotal:       o.ItemTotal,
		OrderStatus:     string(o.Status),
		OrderedAt:       o.CreatedAt.UTC(),
		Month:           record.Month,
		ProcessedAt:     record.ProcessedAt.UTC(),
	}
}

func (d archiveDocument) toDomain() domain.ArchiveRecord {
	return domain.ArchiveRecord{
		Order: domain.ResolvedOrder{
			ID:              d.OrderID,
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
			Status:          domain.OrderStatus(d.OrderStatus),
			CreatedAt:       d.OrderedAt.UTC(),
		},
		Month:       d.Month,
		ProcessedAt: d.ProcessedAt.UTC(),
	}
}
