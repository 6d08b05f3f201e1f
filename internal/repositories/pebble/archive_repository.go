package pebble

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories"
)

const (
	recordPrefix = "rec/"
	monthPrefix  = "month/"
)

var errRecordNotFound = errors.New("pebble archive: record not found")

// ArchiveRepository stores processed orders in an embedded Pebble database for single-node
// deployments. Records live under rec/{orderID}; month/{YYYY-MM}/{orderID} keys index them.
type ArchiveRepository struct {
	db *pebble.DB
	// appendMu serialises the read-then-write of Append.
	appendMu sync.Mutex
}

var _ repositories.ArchiveRepository = (*ArchiveRepository)(nil)

// Option customises the Pebble store.
type Option func(*pebble.Options)

// WithFS overrides the filesystem, typically with vfs.NewMem() in tests.
func WithFS(fs vfs.FS) Option {
	return func(opts *pebble.Options) {
		opts.FS = fs
	}
}

// Open opens (or creates) the archive database in dir.
func Open(dir string, opts ...Option) (*ArchiveRepository, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("pebble archive: directory is required")
	}
	options := &pebble.Options{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	db, err := pebble.Open(filepath.Clean(dir), options)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &ArchiveRepository{db: db}, nil
}

// Close flushes and closes the database.
func (r *ArchiveRepository) Close() error { return r.db.Close() }

// Ping reports whether the database still accepts reads.
func (r *ArchiveRepository) Ping(context.Context) error {
	_, closer, err := r.db.Get([]byte(recordPrefix))
	if err == nil {
		return closer.Close()
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	return err
}

func (r *ArchiveRepository) Append(ctx context.Context, record domain.ArchiveRecord) (domain.ArchiveRecord, bool, error) {
	orderID := strings.TrimSpace(record.OrderID())
	if orderID == "" {
		return domain.ArchiveRecord{}, false, errors.New("pebble archive: order id is required")
	}
	if err := ctx.Err(); err != nil {
		return domain.ArchiveRecord{}, false, err
	}
	record.ProcessedAt = record.ProcessedAt.UTC()
	if record.Month == "" {
		record.Month = domain.ArchiveMonth(record.ProcessedAt)
	}

	r.appendMu.Lock()
	defer r.appendMu.Unlock()

	existing, err := r.load(orderID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, errRecordNotFound):
		return domain.ArchiveRecord{}, false, err
	}

	payload, err := json.Marshal(newArchiveEntry(record))
	if err != nil {
		return domain.ArchiveRecord{}, false, fmt.Errorf("pebble archive: encode %s: %w", orderID, err)
	}

	batch := r.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(recordKey(orderID), payload, nil); err != nil {
		return domain.ArchiveRecord{}, false, err
	}
	if err := batch.Set(monthKey(record.Month, orderID), nil, nil); err != nil {
		return domain.ArchiveRecord{}, false, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return domain.ArchiveRecord{}, false, fmt.Errorf("pebble archive: commit %s: %w", orderID, err)
	}
	return record, true, nil
}

func (r *ArchiveRepository) Get(_ context.Context, orderID string) (domain.ArchiveRecord, error) {
	return r.load(orderID)
}

func (r *ArchiveRepository) ListMonths(_ context.Context) ([]domain.ArchiveMonthSummary, error) {
	counts := make(map[string]int)
	err := r.scan([]byte(monthPrefix), func(key []byte) error {
		rest := strings.TrimPrefix(string(key), monthPrefix)
		month, _, ok := strings.Cut(rest, "/")
		if ok {
			counts[month]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.ArchiveMonthSummary, 0, len(counts))
	for month, n := range counts {
		out = append(out, domain.ArchiveMonthSummary{Month: month, Records: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out, nil
}

func (r *ArchiveRepository) ListByMonth(_ context.Context, month string) ([]domain.ArchiveRecord, error) {
	prefix := []byte(monthPrefix + month + "/")
	var ids []string
	if err := r.scan(prefix, func(key []byte) error {
		ids = append(ids, string(bytes.TrimPrefix(key, prefix)))
		return nil
	}); err != nil {
		return nil, err
	}

	out := make([]domain.ArchiveRecord, 0, len(ids))
	for _, id := range ids {
		record, err := r.load(id)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProcessedAt.Equal(out[j].ProcessedAt) {
			return out[i].OrderID() < out[j].OrderID()
		}
		return out[i].ProcessedAt.Before(out[j].ProcessedAt)
	})
	return out, nil
}

func (r *ArchiveRepository) load(orderID string) (domain.ArchiveRecord, error) {
	value, closer, err := r.db.Get(recordKey(orderID))
	if errors.Is(err, pebble.ErrNotFound) {
		return domain.ArchiveRecord{}, &notFoundError{orderID: orderID}
	}
	if err != nil {
		return domain.ArchiveRecord{}, err
	}
	defer closer.Close()

	var entry archiveEntry
	if err := json.Unmarshal(value, &entry); err != nil {
		return domain.ArchiveRecord{}, fmt.Errorf("pebble archive: decode %s: %w", orderID, err)
	}
	return entry.toDomain(), nil
}

func (r *ArchiveRepository) scan(prefix []byte, fn func(key []byte) error) error {
	it, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		key := append([]byte(nil), it.Key()...)
		if err := fn(key); err != nil {
			return err
		}
	}
	return it.Error()
}

func recordKey(orderID string) []byte { return []byte(recordPrefix + orderID) }

func monthKey(month, orderID string) []byte { return []byte(monthPrefix + month + "/" + orderID) }

func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// notFoundError satisfies repositories.RepositoryError.
type notFoundError struct {
	orderID string
}

func (e *notFoundError) Error() string       { return fmt.Sprintf("%v: %s", errRecordNotFound, e.orderID) }
func (e *notFoundError) Unwrap() error       { return errRecordNotFound }
func (e *notFoundError) IsNotFound() bool    { return true }
func (e *notFoundError) IsConflict() bool    { return false }
func (e *notFoundError) IsUnavailable() bool { return false }

type archiveEntry struct {
	Order       domain.ResolvedOrder `json:"order"`
	Month       string               `json:"month"`
	ProcessedAt time.Time            `json:"processedAt"`
}

func newArchiveEntry(record domain.ArchiveRecord) archiveEntry {
	return archiveEntry{Order: record.Order, Month: record.Month, ProcessedAt: record.ProcessedAt}
}

func (e archiveEntry) toDomain() domain.ArchiveRecord {
	return domain.ArchiveRecord{Order: e.Order, Month: e.Month, ProcessedAt: e.ProcessedAt.UTC()}
}
