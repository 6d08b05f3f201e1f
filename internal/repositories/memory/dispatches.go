package memory

import (
	"context"
	"errors"
	"sync"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories"
)

type dispatchKey struct {
	orderID string
	kind    domain.NotificationKind
}

// DispatchLedger records notification dispatches in memory.
type DispatchLedger struct {
	mu      sync.RWMutex
	entries map[dispatchKey]domain.NotificationDispatch
}

var _ repositories.NotificationLedger = (*DispatchLedger)(nil)

// NewDispatchLedger constructs an empty ledger.
func NewDispatchLedger() *DispatchLedger {
	return &DispatchLedger{entries: make(map[dispatchKey]domain.NotificationDispatch)}
}

func (l *DispatchLedger) Lookup(_ context.Context, orderID string, kind domain.NotificationKind) (domain.NotificationDispatch, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	dispatch, ok := l.entries[dispatchKey{orderID: orderID, kind: kind}]
	return dispatch, ok, nil
}

// Record keeps the first dispatch for an (order, kind) pair and ignores later ones.
func (l *DispatchLedger) Record(_ context.Context, dispatch domain.NotificationDispatch) error {
	if dispatch.OrderID == "" || dispatch.Kind == "" {
		return errors.New("dispatches.record: order id and kind are required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := dispatchKey{orderID: dispatch.OrderID, kind: dispatch.Kind}
	if _, ok := l.entries[key]; !ok {
		l.entries[key] = dispatch
	}
	return nil
}
