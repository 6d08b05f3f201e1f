package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/artisan-market/api/internal/services"
)

type stubReportService struct {
	summaries  []services.ReportSummary
	downloads  map[string]services.ReportDownload
	downloaded []string
}

func (s *stubReportService) ListReports(context.Context) ([]services.ReportSummary, error) {
	return s.summaries, nil
}

func (s *stubReportService) BuildReport(_ context.Context, month string) (services.Report, error) {
	for _, download := range s.downloads {
		if download.Report.Month == month {
			return download.Report, nil
		}
	}
	return services.Report{}, &services.NotFoundError{Resource: "report", ID: month}
}

func (s *stubReportService) ResolveDownload(_ context.Context, filename string) (services.ReportDownload, error) {
	s.downloaded = append(s.downloaded, filename)
	download, ok := s.downloads[filename]
	if !ok {
		return services.ReportDownload{}, &services.NotFoundError{Resource: "report", ID: filename}
	}
	return download, nil
}

func TestReportHandlersList(t *testing.T) {
	handler := NewReportHandlers(&stubReportService{
		summaries: []services.ReportSummary{{Filename: "orders_2025-01.csv", Month: "2025-01", Records: 3}},
	})

	rr := httptest.NewRecorder()
	handler.listReports(rr, adminRequest(http.MethodGet, "/orders/reports", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload []reportSummaryPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON response: %v", err)
	}
	if len(payload) != 1 || payload[0] != (reportSummaryPayload{Filename: "orders_2025-01.csv", Month: "2025-01", Records: 3}) {
		t.Fatalf("unexpected payload %+v", payload)
	}

	rr = httptest.NewRecorder()
	handler.listReports(rr, customerRequest(http.MethodGet, "/orders/reports", ""))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for customer, got %d", rr.Code)
	}
}

func TestReportHandlersDownload(t *testing.T) {
	content := []byte("order_id,product_id\nord-1,prod-lamp\n")
	svc := &stubReportService{
		downloads: map[string]services.ReportDownload{
			"orders_2025-01.csv": {Report: services.Report{
				Filename:    "orders_2025-01.csv",
				Month:       "2025-01",
				ContentType: "text/csv; charset=utf-8",
				Records:     1,
				Content:     content,
			}},
			"orders_2025-02.csv": {
				Report:      services.Report{Filename: "orders_2025-02.csv", Month: "2025-02"},
				RedirectURL: "https://storage.googleapis.com/artisan-reports/reports/orders_2025-02.csv?X-Goog-Signature=abc",
			},
		},
	}
	handler := NewReportHandlers(svc)

	t.Run("inline csv", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := withURLParam(adminRequest(http.MethodGet, "/orders/reports/orders_2025-01.csv", ""), "filename", "orders_2025-01.csv")
		handler.downloadReport(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
			t.Fatalf("unexpected content type %s", ct)
		}
		if cd := rr.Header().Get("Content-Disposition"); cd != `attachment; filename="orders_2025-01.csv"` {
			t.Fatalf("unexpected disposition %s", cd)
		}
		if rr.Body.String() != string(content) {
			t.Fatalf("unexpected body %q", rr.Body.String())
		}
	})

	t.Run("signed redirect", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := withURLParam(adminRequest(http.MethodGet, "/orders/reports/orders_2025-02.csv", ""), "filename", "orders_2025-02.csv")
		handler.downloadReport(rr, req)

		if rr.Code != http.StatusFound {
			t.Fatalf("expected status 302, got %d", rr.Code)
		}
		if loc := rr.Header().Get("Location"); loc != svc.downloads["orders_2025-02.csv"].RedirectURL {
			t.Fatalf("unexpected location %s", loc)
		}
	})

	t.Run("missing", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := withURLParam(adminRequest(http.MethodGet, "/orders/reports/orders_1999-01.csv", ""), "filename", "orders_1999-01.csv")
		handler.downloadReport(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestOrderRoutesMountReports(t *testing.T) {
	svc := &stubReportService{summaries: []services.ReportSummary{{Filename: "orders_2025-01.csv", Month: "2025-01", Records: 1}}}
	orders := NewOrderHandlers(OrderHandlersDeps{Authenticator: testAuthenticator(), Reports: svc})
	router := NewRouter(WithOrderRoutes(orders.Routes))

	req := httptest.NewRequest(http.MethodGet, "/api/orders/reports", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/orders/reports/orders_2025-03.csv", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if len(svc.downloaded) != 1 || svc.downloaded[0] != "orders_2025-03.csv" {
		t.Fatalf("expected filename url param to reach the service, got %v", svc.downloaded)
	}
}

var _ services.ReportService = (*stubReportService)(nil)
