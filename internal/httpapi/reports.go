package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"orderdesk/backend/internal/report"
	"orderdesk/backend/internal/store"
)

func (a *API) handleDailySales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}

	query := r.URL.Query()
	resp, err := a.service.GetDailySales(r.Context(), query.Get("store_id"), query.Get("from"), query.Get("to"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSalesSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}

	query := r.URL.Query()
	resp, err := a.service.GetSalesSeries(r.Context(), query.Get("store_id"), query.Get("period"), query.Get("from"), query.Get("to"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleTopMenus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}

	query := r.URL.Query()
	resp, err := a.service.GetTopMenus(r.Context(), query.Get("store_id"), query.Get("from"), query.Get("to"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}

	query := r.URL.Query()
	resp, err := a.service.GetDashboard(r.Context(), query.Get("store_id"), query.Get("date"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}

	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("store_id"), query.Get("date"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}

	query := r.URL.Query()
	year, err := optionalInt(query.Get("year"), "year")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	month, err := optionalInt(query.Get("month"), "month")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	rep, err := a.service.GetMonthlyReport(r.Context(), query.Get("store_id"), year, month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	format := strings.ToLower(strings.TrimSpace(query.Get("format")))
	switch format {
	case "", "json":
		writeJSON(w, http.StatusOK, rep)
	case "csv":
		body, err := report.ToCSV(rep)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(rep, "csv")))
		_, _ = w.Write([]byte(body))
	case "html":
		body, err := report.ToHTML(rep)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	case "xlsx":
		var buf bytes.Buffer
		if err := report.ToXLSX(rep, &buf); err != nil {
			writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", report.XLSXContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(rep, "xlsx")))
		_, _ = w.Write(buf.Bytes())
	default:
		writeServiceError(w, r, store.Invalid("format", "must be one of json csv html xlsx"))
	}
}

func optionalInt(raw string, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, store.Invalid(field, "must be a number")
	}
	return n, nil
}
