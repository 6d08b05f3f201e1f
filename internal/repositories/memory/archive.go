package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories"
)

// ArchiveStore keeps processed-order records in memory, one per order id.
type ArchiveStore struct {
	mu      sync.RWMutex
	records map[string]domain.ArchiveRecord
}

var _ repositories.ArchiveRepository = (*ArchiveStore)(nil)

// NewArchiveStore constructs an empty archive.
func NewArchiveStore() *ArchiveStore {
	return &ArchiveStore{records: make(map[string]domain.ArchiveRecord)}
}

func (s *ArchiveStore) Append(_ context.Context, record domain.ArchiveRecord) (domain.ArchiveRecord, bool, error) {
	id := strings.TrimSpace(record.OrderID())
	if id == "" {
		return domain.ArchiveRecord{}, false, errors.New("archive.append: order id is required")
	}
	if record.Month == "" {
		record.Month = domain.ArchiveMonth(record.ProcessedAt)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[id]; ok {
		return existing, false, nil
	}
	s.records[id] = record
	return record, true, nil
}

func (s *ArchiveStore) Get(_ context.Context, orderID string) (domain.ArchiveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[orderID]
	if !ok {
		return domain.ArchiveRecord{}, notFound("archive.get", orderID)
	}
	return record, nil
}

func (s *ArchiveStore) ListMonths(_ context.Context) ([]domain.ArchiveMonthSummary, error) {
	s.mu.RLock()
	counts := make(map[string]int)
	for _, record := range s.records {
		counts[record.Month]++
	}
	s.mu.RUnlock()

	out := make([]domain.ArchiveMonthSummary, 0, len(counts))
	for month, n := range counts {
		out = append(out, domain.ArchiveMonthSummary{Month: month, Records: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out, nil
}

func (s *ArchiveStore) ListByMonth(_ context.Context, month string) ([]domain.ArchiveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ArchiveRecord
	for _, record := range s.records {
		if record.Month == month {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProcessedAt.Equal(out[j].ProcessedAt) {
			return out[i].OrderID() < out[j].OrderID()
		}
		return out[i].ProcessedAt.Before(out[j].ProcessedAt)
	})
	return out, nil
}
