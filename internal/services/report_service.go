package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories"
)

const (
	reportFilePrefix    = "orders_"
	reportFileExt       = ".csv"
	reportContentType   = "text/csv; charset=utf-8"
	reportTimestampForm = "2006-01-02 15:04:05"

	eventReportPublished = "reports.published"
)

var reportHeader = []string{
	"order_id",
	"user_email",
	"product_id",
	"quantity",
	"status",
	"processed_at",
	"product_name",
	"item_total",
	"customer_name",
}

// ReportServiceDeps bundles the collaborators required to construct a report service.
type ReportServiceDeps struct {
	Archive repositories.ArchiveRepository
	// Publisher is optional. When set, downloads redirect to the published object.
	Publisher ReportPublisher
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type reportService struct {
	archive   repositories.ArchiveRepository
	publisher ReportPublisher
	logger    func(context.Context, string, map[string]any)
}

var _ ReportService = (*reportService)(nil)

// NewReportService constructs the monthly archive report service.
func NewReportService(deps ReportServiceDeps) (ReportService, error) {
	if deps.Archive == nil {
		return nil, errors.New("report service: archive repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &reportService{archive: deps.Archive, publisher: deps.Publisher, logger: logger}, nil
}

func (s *reportService) ListReports(ctx context.Context) ([]ReportSummary, error) {
	months, err := s.archive.ListMonths(ctx)
	if err != nil {
		return nil, fmt.Errorf("list archive months: %w", err)
	}
	out := make([]ReportSummary, 0, len(months))
	for _, month := range months {
		if month.Records <= 0 {
			continue
		}
		out = append(out, ReportSummary{
			Filename: ReportFilename(month.Month),
			Month:    month.Month,
			Records:  month.Records,
		})
	}
	return out, nil
}

func (s *reportService) BuildReport(ctx context.Context, month string) (Report, error) {
	month = strings.TrimSpace(month)
	if _, err := time.Parse(domain.ArchiveMonthLayout, month); err != nil {
		return Report{}, newValidationError("month", "must use YYYY-MM")
	}

	records, err := s.archive.ListByMonth(ctx, month)
	if err != nil {
		return Report{}, fmt.Errorf("list archive month %s: %w", month, err)
	}
	if len(records) == 0 {
		return Report{}, &NotFoundError{Resource: "report", ID: ReportFilename(month)}
	}

	content, err := encodeReport(records)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Filename:    ReportFilename(month),
		Month:       month,
		ContentType: reportContentType,
		Records:     len(records),
		Content:     content,
	}, nil
}

func (s *reportService) ResolveDownload(ctx context.Context, filename string) (ReportDownload, error) {
	month, ok := ParseReportFilename(filename)
	if !ok {
		return ReportDownload{}, &NotFoundError{Resource: "report", ID: filename}
	}
	report, err := s.BuildReport(ctx, month)
	if err != nil {
		return ReportDownload{}, err
	}
	if s.publisher == nil {
		return ReportDownload{Report: report}, nil
	}

	url, err := s.publisher.Publish(ctx, report)
	if err != nil {
		return ReportDownload{}, fmt.Errorf("publish report %s: %w", report.Filename, err)
	}
	s.logger(ctx, eventReportPublished, map[string]any{
		"filename": report.Filename,
		"records":  report.Records,
	})
	return ReportDownload{Report: report, RedirectURL: url}, nil
}

// ReportFilename returns the download name of the report for month.
func ReportFilename(month string) string {
	return reportFilePrefix + month + reportFileExt
}

// ParseReportFilename extracts the month from a report filename.
func ParseReportFilename(filename string) (string, bool) {
	name := strings.TrimSpace(filename)
	if !strings.HasPrefix(name, reportFilePrefix) || !strings.HasSuffix(name, reportFileExt) {
		return "", false
	}
	month := strings.TrimSuffix(strings.TrimPrefix(name, reportFilePrefix), reportFileExt)
	if _, err := time.Parse(domain.ArchiveMonthLayout, month); err != nil {
		return "", false
	}
	return month, true
}

func encodeReport(records []ArchiveRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(reportHeader); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	for _, record := range records {
		order := record.Order
		row := []string{
			order.ID,
			order.CustomerEmail,
			order.ProductID,
			strconv.Itoa(order.Quantity),
			string(order.Status),
			record.ProcessedAt.UTC().Format(reportTimestampForm),
			order.ProductName,
			formatDecimalRupees(order.ItemTotal),
			order.CustomerName,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("encode report: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return buf.Bytes(), nil
}

func formatDecimalRupees(paise int64) string {
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	return fmt.Sprintf("%s%d.%02d", sign, paise/100, paise%100)
}
