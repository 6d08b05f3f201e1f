package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/artisan-market/api/internal/platform/httpx"
	"github.com/artisan-market/api/internal/services"
)

// ReportHandlers serves the monthly archive exports to administrators.
type ReportHandlers struct {
	reports services.ReportService
}

// NewReportHandlers constructs report handlers backed by the report service.
func NewReportHandlers(reports services.ReportService) *ReportHandlers {
	return &ReportHandlers{reports: reports}
}

type reportSummaryPayload struct {
	Filename string `json:"filename"`
	Month    string `json:"month"`
	Records  int    `json:"records"`
}

func (h *ReportHandlers) listReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdminIdentity(w, r); !ok {
		return
	}

	summaries, err := h.reports.ListReports(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := make([]reportSummaryPayload, 0, len(summaries))
	for _, summary := range summaries {
		payload = append(payload, reportSummaryPayload{
			Filename: summary.Filename,
			Month:    summary.Month,
			Records:  summary.Records,
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *ReportHandlers) downloadReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdminIdentity(w, r); !ok {
		return
	}

	filename := strings.TrimSpace(chi.URLParam(r, "filename"))
	if filename == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "filename is required", http.StatusBadRequest))
		return
	}

	download, err := h.reports.ResolveDownload(ctx, filename)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	if download.RedirectURL != "" {
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, download.RedirectURL, http.StatusFound)
		return
	}

	report := download.Report
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(report.Content)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report.Content)
}
