package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories"
)

// BuildInfo identifies the running binary on /readyz.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	// CacheTTL reuses a collected report for this long. Zero probes on every call.
	CacheTTL time.Duration
}

type systemService struct {
	health   repositories.HealthRepository
	now      func() time.Time
	build    BuildInfo
	cacheTTL time.Duration

	probes   singleflight.Group
	mu       sync.Mutex
	cached   SystemHealthReport
	cachedAt time.Time
}

var _ SystemService = (*systemService)(nil)

// NewSystemService builds the readiness reporter. Concurrent callers share one probe round.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}
	return &systemService{
		health:   deps.HealthRepository,
		now:      func() time.Time { return clock().UTC() },
		build:    build,
		cacheTTL: deps.CacheTTL,
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	now := s.now()
	if report, ok := s.fromCache(now); ok {
		return s.decorate(report, now), nil
	}

	result, err, _ := s.probes.Do("health", func() (any, error) {
		report, err := s.health.Collect(ctx)
		if err != nil {
			return nil, err
		}
		s.store(report, s.now())
		return report, nil
	})
	if err != nil {
		return SystemHealthReport{}, err
	}
	return s.decorate(result.(SystemHealthReport), now), nil
}

func (s *systemService) fromCache(now time.Time) (SystemHealthReport, bool) {
	if s.cacheTTL <= 0 {
		return SystemHealthReport{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cachedAt.IsZero() || now.Sub(s.cachedAt) >= s.cacheTTL {
		return SystemHealthReport{}, false
	}
	return s.cached, true
}

func (s *systemService) store(report SystemHealthReport, at time.Time) {
	if s.cacheTTL <= 0 {
		return
	}
	s.mu.Lock()
	s.cached, s.cachedAt = report, at
	s.mu.Unlock()
}

// decorate fills build metadata and derives the overall status from the individual checks.
func (s *systemService) decorate(report SystemHealthReport, now time.Time) SystemHealthReport {
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	if report.Version == "" {
		report.Version = s.build.Version
	}
	if report.CommitSHA == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if report.Environment == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if report.Status == "" {
		report.Status = overallStatus(report.Checks)
	}
	return report
}

// overallStatus is error if any check errored, degraded if any check is neither ok nor error.
func overallStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
