package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/artisan-market/api/internal/domain"
)

type countingHealthRepository struct {
	mu     sync.Mutex
	report domain.SystemHealthReport
	err    error
	calls  int
}

func (r *countingHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.report, r.err
}

func (r *countingHealthRepository) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestSystemServiceReportsBuildAndUptime(t *testing.T) {
	started := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Minute)
	repo := &countingHealthRepository{report: domain.SystemHealthReport{
		Checks: map[string]domain.SystemHealthCheck{"orders": {Status: domain.HealthStatusOK}},
	}}

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		Build:            BuildInfo{Version: "v0.4.0", CommitSHA: "9f1c2e7", Environment: "staging", StartedAt: started},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok, got %s", report.Status)
	}
	if report.Version != "v0.4.0" || report.CommitSHA != "9f1c2e7" || report.Environment != "staging" {
		t.Fatalf("unexpected build metadata %+v", report)
	}
	if report.Uptime != 90*time.Minute {
		t.Fatalf("expected 90m uptime, got %s", report.Uptime)
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
}

func TestSystemServiceOverallStatus(t *testing.T) {
	cases := []struct {
		name   string
		checks map[string]domain.SystemHealthCheck
		want   string
	}{
		{name: "no checks", want: domain.HealthStatusOK},
		{
			name: "optional dependency degraded",
			checks: map[string]domain.SystemHealthCheck{
				"orders":        {Status: domain.HealthStatusOK},
				"secretManager": {Status: domain.HealthStatusDegraded},
			},
			want: domain.HealthStatusDegraded,
		},
		{
			name: "archive down",
			checks: map[string]domain.SystemHealthCheck{
				"archive":       {Status: domain.HealthStatusError},
				"secretManager": {Status: domain.HealthStatusDegraded},
			},
			want: domain.HealthStatusError,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, err := NewSystemService(SystemServiceDeps{
				HealthRepository: &countingHealthRepository{report: domain.SystemHealthReport{Checks: tc.checks}},
			})
			if err != nil {
				t.Fatalf("NewSystemService: %v", err)
			}
			report, err := svc.HealthReport(context.Background())
			if err != nil {
				t.Fatalf("HealthReport: %v", err)
			}
			if report.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, report.Status)
			}
		})
	}
}

func TestSystemServiceCachesReports(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := &countingHealthRepository{}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		CacheTTL:         5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.HealthReport(context.Background()); err != nil {
			t.Fatalf("HealthReport: %v", err)
		}
	}
	if got := repo.callCount(); got != 1 {
		t.Fatalf("expected one probe within the ttl, got %d", got)
	}

	now = now.Add(5 * time.Second)
	if _, err := svc.HealthReport(context.Background()); err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if got := repo.callCount(); got != 2 {
		t.Fatalf("expected a fresh probe after the ttl, got %d", got)
	}
}

func TestSystemServiceDoesNotCacheFailures(t *testing.T) {
	collectErr := errors.New("firestore unreachable")
	repo := &countingHealthRepository{err: collectErr}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo, CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.HealthReport(context.Background()); !errors.Is(err, collectErr) {
			t.Fatalf("expected collect error, got %v", err)
		}
	}
	if got := repo.callCount(); got != 2 {
		t.Fatalf("expected failures to be retried, got %d probes", got)
	}
}

func TestNewSystemServiceRequiresRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatalf("expected error when repository missing")
	}
}
