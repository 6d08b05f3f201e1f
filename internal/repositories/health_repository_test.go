package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/artisan-market/api/internal/domain"
)

func TestDependencyHealthRepositoryCollectSuccess(t *testing.T) {
	checks := []DependencyCheck{
		{
			Name: "orders",
			Check: func(ctx context.Context) error {
				select {
				case <-time.After(10 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
		{
			Name:  "archive",
			Check: func(context.Context) error { return nil },
		},
	}

	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository(checks,
		WithDependencyClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected status ok, got %s", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(report.Checks))
	}
	for name, check := range report.Checks {
		if check.Status != domain.HealthStatusOK {
			t.Fatalf("expected check %s to be ok, got %s", name, check.Status)
		}
		if !check.CheckedAt.Equal(now) {
			t.Fatalf("expected check %s checkedAt %s, got %s", name, now, check.CheckedAt)
		}
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
}

func TestDependencyHealthRepositoryCollectFailure(t *testing.T) {
	expectedErr := errors.New("firestore: connection refused")
	checks := []DependencyCheck{
		{Name: "orders", Check: func(context.Context) error { return expectedErr }},
		{Name: "notifications", Check: func(context.Context) error { return nil }},
	}

	repo, err := NewDependencyHealthRepository(checks)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected status error, got %s", report.Status)
	}
	check := report.Checks["orders"]
	if check.Status != domain.HealthStatusError || check.Detail != "unavailable" {
		t.Fatalf("unexpected orders check %+v", check)
	}
	if check.Error != expectedErr.Error() {
		t.Fatalf("expected error %q, got %q", expectedErr.Error(), check.Error)
	}
	if report.Checks["notifications"].Status != domain.HealthStatusOK {
		t.Fatalf("healthy dependency must stay ok, got %+v", report.Checks["notifications"])
	}
}

func TestDependencyHealthRepositoryOptionalFailureDegrades(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "orders", Check: func(context.Context) error { return nil }},
		{Name: "secretManager", Optional: true, Check: func(context.Context) error { return errors.New("permission denied") }},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected status degraded, got %s", report.Status)
	}
	if check := report.Checks["secretManager"]; check.Status != domain.HealthStatusDegraded {
		t.Fatalf("unexpected secretManager check %+v", check)
	}
}

func TestDependencyHealthRepositoryCollectTimeout(t *testing.T) {
	slow := func(ctx context.Context) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	checks := []DependencyCheck{
		{Name: "archive", Timeout: 5 * time.Millisecond, Check: slow},
		{Name: "events", Timeout: 5 * time.Millisecond, Optional: true, Check: slow},
	}

	repo, err := NewDependencyHealthRepository(checks)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected status error, got %s", report.Status)
	}
	if check := report.Checks["archive"]; check.Status != domain.HealthStatusError || check.Detail != "timeout" {
		t.Fatalf("unexpected archive check %+v", check)
	}
	if check := report.Checks["events"]; check.Status != domain.HealthStatusDegraded || check.Detail != "timeout" {
		t.Fatalf("optional check must degrade, got %+v", check)
	}
}

func TestNewDependencyHealthRepositoryRejectsInvalidChecks(t *testing.T) {
	ok := func(context.Context) error { return nil }
	cases := map[string][]DependencyCheck{
		"empty":     nil,
		"no name":   {{Name: " ", Check: ok}},
		"no func":   {{Name: "orders"}},
		"duplicate": {{Name: "orders", Check: ok}, {Name: " orders ", Check: ok}},
	}
	for name, checks := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewDependencyHealthRepository(checks); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
