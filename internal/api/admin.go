package api

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/maruonline/leadgen/internal/auth"
	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/monitoring"
	"github.com/maruonline/leadgen/internal/store"
	"github.com/maruonline/leadgen/internal/validate"
)

const (
	defaultLeadLimit = 100
	maxLeadLimit     = 1000
	exportPageSize   = 1000
	defaultLogLimit  = 50
	slowRouteAt      = time.Second
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password required")
		return
	}

	token, err := h.Sessions.Login(req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "Admin login not configured")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.reportSuspicious(r, "invalid_login")
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	case err != nil:
		writeInternal(w, r, "admin login", err)
		return
	}

	http.SetCookie(w, h.Sessions.Cookie(token))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, h.Sessions.ClearCookie())
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// leadFilter reads search, sort, min_score, limit and offset from the query
// string. Malformed numbers fall back to their defaults.
func leadFilter(r *http.Request) store.LeadFilter {
	q := r.URL.Query()
	f := store.LeadFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Sort:   q.Get("sort"),
		Limit:  defaultLeadLimit,
	}
	if n, err := strconv.Atoi(q.Get("min_score")); err == nil {
		f.MinScore = &n
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		f.Limit = min(n, maxLeadLimit)
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		f.Offset = n
	}
	return f
}

func (h *Handler) handleListLeads(w http.ResponseWriter, r *http.Request) {
	f := leadFilter(r)
	leads, total, err := h.Store.ListLeads(r.Context(), f)
	if err != nil {
		writeInternal(w, r, "list leads", err)
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"leads":   leads,
		"total":   total,
		"limit":   f.Limit,
		"offset":  f.Offset,
	})
}

// ExportRow is one line of the leads export.
type ExportRow struct {
	Email           string `csv:"Email"`
	FirstName       string `csv:"First Name"`
	LastName        string `csv:"Last Name"`
	Company         string `csv:"Company"`
	Website         string `csv:"Website"`
	Phone           string `csv:"Phone"`
	LeadScore       int    `csv:"Lead Score"`
	AssessmentCount int    `csv:"Assessment Count"`
	CreatedDate     string `csv:"Created Date"`
	HubSpotID       string `csv:"HubSpot ID"`
}

// ExportRows converts leads into export rows. Stored text is unescaped and a
// missing score exports as 0.
func ExportRows(leads []model.Lead) []ExportRow {
	rows := make([]ExportRow, 0, len(leads))
	for _, l := range leads {
		score := 0
		if l.LeadScore != nil {
			score = *l.LeadScore
		}
		rows = append(rows, ExportRow{
			Email:           l.Email,
			FirstName:       validate.Plain(l.FirstName),
			LastName:        validate.Plain(l.LastName),
			Company:         validate.Plain(l.CompanyName),
			Website:         l.WebsiteURL,
			Phone:           validate.Plain(l.Phone),
			LeadScore:       score,
			AssessmentCount: l.AssessmentCount,
			CreatedDate:     l.CreatedAt.UTC().Format("2006-01-02"),
			HubSpotID:       l.HubSpotContactID,
		})
	}
	return rows
}

func (h *Handler) allLeads(r *http.Request, f store.LeadFilter) ([]model.Lead, error) {
	f.Limit = exportPageSize
	f.Offset = 0
	var all []model.Lead
	for {
		page, total, err := h.Store.ListLeads(r.Context(), f)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < f.Limit || len(all) >= total {
			return all, nil
		}
		f.Offset += len(page)
	}
}

// handleExportLeads streams every lead matching the filter as CSV (default)
// or XLSX.
func (h *Handler) handleExportLeads(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		writeError(w, http.StatusBadRequest, "Invalid export format")
		return
	}

	leads, err := h.allLeads(r, leadFilter(r))
	if err != nil {
		writeInternal(w, r, "export leads", err)
		return
	}
	rows := ExportRows(leads)
	name := "leads-" + h.now().UTC().Format("2006-01-02") + "." + format

	if format == "xlsx" {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		if err := WriteXLSX(w, rows); err != nil {
			zap.L().Error("api: write xlsx export", zap.Error(err))
		}
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := WriteCSV(w, rows); err != nil {
		zap.L().Error("api: write csv export", zap.Error(err))
	}
}

// WriteCSV encodes rows with a header line, even when rows is empty.
func WriteCSV(w io.Writer, rows []ExportRow) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(ExportRow{}); err != nil {
		return eris.Wrap(err, "export: csv header")
	}
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return eris.Wrap(err, "export: csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes rows to a single "Leads" sheet.
func WriteXLSX(w io.Writer, rows []ExportRow) error {
	header, err := csvutil.Header(ExportRow{}, "csv")
	if err != nil {
		return eris.Wrap(err, "export: xlsx header")
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	hr := sheet.AddRow()
	for _, col := range header {
		hr.AddCell().SetString(col)
	}
	for _, row := range rows {
		xr := sheet.AddRow()
		xr.AddCell().SetString(row.Email)
		xr.AddCell().SetString(row.FirstName)
		xr.AddCell().SetString(row.LastName)
		xr.AddCell().SetString(row.Company)
		xr.AddCell().SetString(row.Website)
		xr.AddCell().SetString(row.Phone)
		xr.AddCell().SetInt(row.LeadScore)
		xr.AddCell().SetInt(row.AssessmentCount)
		xr.AddCell().SetString(row.CreatedDate)
		xr.AddCell().SetString(row.HubSpotID)
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func (h *Handler) handleMonitoring(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view := q.Get("type")
	if view == "" {
		view = "overview"
	}

	switch view {
	case "overview":
		writeJSON(w, http.StatusOK, h.Collector.Overview())
	case "logs":
		limit := defaultLogLimit
		if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
			limit = n
		}
		logs := []monitoring.LogEntry{}
		if buf := h.Collector.Logs(); buf != nil {
			logs = buf.Logs(q.Get("level"), limit)
		}
		writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
	case "security":
		blocked, suspicious := []string{}, []monitoring.SuspiciousIP{}
		if sec := h.Collector.Security(); sec != nil {
			blocked, suspicious = sec.Blocked(), sec.Suspicious()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"blockedIPs":    blocked,
			"suspiciousIPs": suspicious,
		})
	case "performance":
		metrics, slow := map[string]monitoring.RouteMetrics{}, []monitoring.SlowRoute{}
		if perf := h.Collector.Performance(); perf != nil {
			metrics, slow = perf.Metrics(), perf.Slow(slowRouteAt)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"metrics":       metrics,
			"slowEndpoints": slow,
		})
	default:
		writeError(w, http.StatusBadRequest, "Invalid monitoring type")
	}
}

type monitoringAction struct {
	Action string `json:"action"`
	IP     string `json:"ip"`
}

func (h *Handler) handleMonitoringAction(w http.ResponseWriter, r *http.Request) {
	var req monitoringAction
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sec := h.Collector.Security()
	if req.Action != "unblock" || req.IP == "" || sec == nil {
		writeError(w, http.StatusBadRequest, "Invalid action")
		return
	}
	sec.Unblock(req.IP)
	zap.L().Info("api: ip unblocked", zap.String("ip", req.IP))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "IP unblocked",
	})
}
