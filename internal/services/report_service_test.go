package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories/memory"
)

type stubReportPublisher struct {
	published []Report
	url       string
	err       error
}

func (s *stubReportPublisher) Publish(_ context.Context, report Report) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.published = append(s.published, report)
	return s.url, nil
}

func seededArchive(t *testing.T) *memory.ArchiveStore {
	t.Helper()
	archive := memory.NewArchiveStore()
	for _, rec := range []struct {
		id string
		at time.Time
	}{
		{"ord-1", time.Date(2025, 1, 10, 8, 30, 0, 0, time.UTC)},
		{"ord-2", time.Date(2025, 1, 11, 9, 0, 0, 0, time.UTC)},
		{"ord-3", time.Date(2025, 2, 1, 0, 0, 1, 0, time.UTC)},
	} {
		order := domain.ResolveDefaults(purchasedOrder(rec.id))
		order.Status = domain.OrderStatusProcessed
		if _, _, err := archive.Append(context.Background(), domain.ArchiveRecord{Order: order, ProcessedAt: rec.at}); err != nil {
			t.Fatalf("seed archive: %v", err)
		}
	}
	return archive
}

func TestReportServiceListReports(t *testing.T) {
	svc, err := NewReportService(ReportServiceDeps{Archive: seededArchive(t)})
	if err != nil {
		t.Fatalf("NewReportService: %v", err)
	}
	reports, err := svc.ListReports(context.Background())
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %+v", reports)
	}
	if reports[0].Filename != "orders_2025-02.csv" || reports[1].Month != "2025-01" || reports[1].Records != 2 {
		t.Fatalf("unexpected reports %+v", reports)
	}
}

func TestReportServiceBuildReportCSV(t *testing.T) {
	svc, err := NewReportService(ReportServiceDeps{Archive: seededArchive(t)})
	if err != nil {
		t.Fatalf("NewReportService: %v", err)
	}
	report, err := svc.BuildReport(context.Background(), "2025-01")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if report.Filename != "orders_2025-01.csv" || report.Records != 2 {
		t.Fatalf("unexpected report %+v", report)
	}

	rows, err := csv.NewReader(bytes.NewReader(report.Content)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "order_id" || rows[0][5] != "processed_at" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	want := []string{"ord-1", "asha@example.com", "lamp", "2", "processed", "2025-01-10 08:30:00", "Brass Lamp", "2500.00", "Asha"}
	for i, value := range want {
		if rows[1][i] != value {
			t.Fatalf("column %d: expected %q, got %q", i, value, rows[1][i])
		}
	}
}

func TestReportServiceResolveDownload(t *testing.T) {
	ctx := context.Background()
	archive := seededArchive(t)

	plain, err := NewReportService(ReportServiceDeps{Archive: archive})
	if err != nil {
		t.Fatalf("NewReportService: %v", err)
	}
	download, err := plain.ResolveDownload(ctx, "orders_2025-02.csv")
	if err != nil {
		t.Fatalf("ResolveDownload: %v", err)
	}
	if download.RedirectURL != "" || download.Report.Records != 1 {
		t.Fatalf("expected inline report, got %+v", download)
	}

	publisher := &stubReportPublisher{url: "https://storage.example/signed"}
	signed, err := NewReportService(ReportServiceDeps{Archive: archive, Publisher: publisher})
	if err != nil {
		t.Fatalf("NewReportService: %v", err)
	}
	download, err = signed.ResolveDownload(ctx, "orders_2025-01.csv")
	if err != nil {
		t.Fatalf("ResolveDownload: %v", err)
	}
	if download.RedirectURL != publisher.url || len(publisher.published) != 1 {
		t.Fatalf("expected redirect after publish, got %+v", download)
	}

	for _, name := range []string{"orders_2024-12.csv", "orders_2025-13.csv", "../etc/passwd", "orders_2025-01.xlsx"} {
		if _, err := plain.ResolveDownload(ctx, name); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected not found, got %v", name, err)
		}
	}
}

func TestParseReportFilename(t *testing.T) {
	month, ok := ParseReportFilename("orders_2025-03.csv")
	if !ok || month != "2025-03" {
		t.Fatalf("unexpected parse result %q %v", month, ok)
	}
	if _, ok := ParseReportFilename("orders_march.csv"); ok {
		t.Fatalf("expected invalid month to be rejected")
	}
}
