package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/ratelimit"
)

// AnonymousCompany is the company recorded on visitor tracking leads.
const AnonymousCompany = "Anonymous Visitor"

// eventTime reads an ISO 8601 string or a unix millisecond number. Anything
// else yields the zero time, which the store replaces with now.
func eventTime(v any) time.Time {
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
	case float64:
		return time.UnixMilli(int64(t))
	}
	return time.Time{}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// handleAnalyticsEvent stores a page-level event. Fields other than event,
// page, timestamp, assessment_type and step go into the metadata.
func (h *Handler) handleAnalyticsEvent(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	event, page := stringValue(body["event"]), stringValue(body["page"])
	if event == "" || page == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	ev := &model.AnalyticsEvent{
		EventType:      event,
		PagePath:       page,
		AssessmentType: stringValue(body["assessment_type"]),
		Step:           stringValue(body["step"]),
		Timestamp:      eventTime(body["timestamp"]),
		UserAgent:      r.UserAgent(),
		IPAddress:      ratelimit.ClientIP(r),
	}
	for _, k := range []string{"event", "page", "timestamp", "assessment_type", "step"} {
		delete(body, k)
	}
	ev.Metadata = body

	if err := h.Store.RecordEvent(r.Context(), ev); err != nil {
		writeInternal(w, r, "record analytics event", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type journeyRequest struct {
	Event     string         `json:"event"`
	Page      string         `json:"page"`
	Timestamp any            `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// AnonymousEmail is the synthetic address of the tracking lead for a client
// address.
func AnonymousEmail(ip string) string {
	if ip == "" {
		ip = "unknown"
	}
	return "anonymous_" + strings.NewReplacer(".", "_", ":", "_").Replace(ip) + "@tracking.local"
}

// handleJourney records a visitor step on the anonymous lead of the client
// address. Events outside the activity vocabulary are stored as page views
// with the original name under metadata.event.
func (h *Handler) handleJourney(w http.ResponseWriter, r *http.Request) {
	var req journeyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Event == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	ip := ratelimit.ClientIP(r)
	lead, err := h.Store.UpsertLead(r.Context(), AnonymousEmail(ip), model.LeadFields{CompanyName: AnonymousCompany})
	if err != nil {
		writeInternal(w, r, "journey lead", err)
		return
	}

	meta := make(map[string]any, len(req.Metadata)+5)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	typ := model.ActivityType(req.Event)
	if !typ.Valid() {
		meta["event"] = req.Event
		typ = model.ActivityPageView
	}
	if req.Page != "" {
		meta["page_url"] = req.Page
	}
	if tool := stringValue(req.Metadata["tool_type"]); tool != "" {
		meta["assessment_type"] = tool
	}
	if req.Timestamp != nil {
		meta["timestamp"] = req.Timestamp
	}
	meta["user_agent"] = r.UserAgent()
	meta["ip"] = ip

	if _, err := h.Store.TrackActivity(r.Context(), lead.ID, typ, meta); err != nil {
		writeInternal(w, r, "journey activity", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dash, err := h.Collector.Dashboard(r.Context(), q.Get("timeframe"), model.AppType(q.Get("assessment_type")))
	if err != nil {
		writeInternal(w, r, "analytics dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}
