package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/artisan-market/api/internal/domain"
	pfirestore "github.com/artisan-market/api/internal/platform/firestore"
	"github.com/artisan-market/api/internal/repositories"
)

const dispatchCollection = "notificationDispatches"

// DispatchRepository records delivered notifications under notificationDispatches/{orderID}:{kind}.
type DispatchRepository struct {
	base *pfirestore.Collection[dispatchDocument]
}

var _ repositories.NotificationLedger = (*DispatchRepository)(nil)

// NewDispatchRepository constructs the Firestore-backed notification ledger.
func NewDispatchRepository(provider *pfirestore.Provider) (*DispatchRepository, error) {
	if provider == nil {
		return nil, errors.New("dispatch repository requires firestore provider")
	}
	return &DispatchRepository{base: pfirestore.NewCollection[dispatchDocument](provider, dispatchCollection)}, nil
}

func (r *DispatchRepository) Lookup(ctx context.Context, orderID string, kind domain.NotificationKind) (domain.NotificationDispatch, bool, error) {
	doc, err := r.base.Get(ctx, dispatchID(orderID, kind))
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.NotificationDispatch{}, false, nil
		}
		return domain.NotificationDispatch{}, false, err
	}
	return domain.NotificationDispatch{
		OrderID:   doc.Data.OrderID,
		Kind:      domain.NotificationKind(doc.Data.Kind),
		MessageID: doc.Data.MessageID,
		SentAt:    doc.Data.SentAt.UTC(),
	}, true, nil
}

// Record is create-only; a dispatch already on file is left untouched.
func (r *DispatchRepository) Record(ctx context.Context, dispatch domain.NotificationDispatch) error {
	if dispatch.OrderID == "" || dispatch.Kind == "" {
		return errors.New("dispatch record: order id and kind are required")
	}
	err := r.base.Create(ctx, dispatchID(dispatch.OrderID, dispatch.Kind), dispatchDocument{
		OrderID:   dispatch.OrderID,
		Kind:      string(dispatch.Kind),
		MessageID: dispatch.MessageID,
		SentAt:    dispatch.SentAt.UTC(),
	})
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		return nil
	}
	return err
}

type dispatchDocument struct {
	OrderID   string    `firestore:"orderId"`
	Kind      string    `firestore:"kind"`
	MessageID string    `firestore:"messageId"`
	SentAt    time.Time `firestore:"sentAt"`
}

func dispatchID(orderID string, kind domain.NotificationKind) string {
	return orderID + ":" + string(kind)
}
