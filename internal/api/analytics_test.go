package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruonline/leadgen/internal/model"
)

func TestAnalyticsEvent(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/analytics", `{"event":"page_view"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required fields", decode(t, w)["error"])

	w = env.do(t, http.MethodPost, "/api/analytics",
		`{"event":"assessment_step","page":"/tools/lead-score","timestamp":"2026-05-04T09:30:00Z","assessment_type":"lead_score","step":"2","referrer":"google"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	counts, err := env.store.CountEvents(context.Background(),
		time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, counts["assessment_step"])
}

func TestEventTime(t *testing.T) {
	assert.Equal(t, time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC), eventTime("2026-05-04T09:30:00Z").UTC())
	assert.Equal(t, time.UnixMilli(1700000000000), eventTime(float64(1700000000000)))
	assert.True(t, eventTime("yesterday").IsZero())
	assert.True(t, eventTime(nil).IsZero())
}

func TestAnonymousEmail(t *testing.T) {
	assert.Equal(t, "anonymous_10_0_0_1@tracking.local", AnonymousEmail("10.0.0.1"))
	assert.Equal(t, "anonymous_2001_db8__1@tracking.local", AnonymousEmail("2001:db8::1"))
	assert.Equal(t, "anonymous_unknown@tracking.local", AnonymousEmail(""))
}

func TestJourney(t *testing.T) {
	env := newTestEnv(t)
	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/analytics/journey", strings.NewReader(body))
		req.Header.Set("X-Forwarded-For", "10.0.0.1")
		req.Header.Set("User-Agent", "journey-test")
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusOK, post(`{"event":"assessment_start","page":"/tools","metadata":{"tool_type":"lead_score"}}`).Code)
	require.Equal(t, http.StatusOK, post(`{"event":"cta_click","page":"/pricing","timestamp":"2026-05-04T09:30:00Z"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"page":"/pricing"}`).Code)

	ctx := context.Background()
	lead, err := env.store.GetLeadByEmail(ctx, "anonymous_10_0_0_1@tracking.local")
	require.NoError(t, err)
	assert.Equal(t, AnonymousCompany, lead.CompanyName)

	activities, err := env.store.ListActivities(ctx, lead.ID, 10)
	require.NoError(t, err)
	require.Len(t, activities, 2)

	byType := map[model.ActivityType]model.LeadActivity{}
	for _, a := range activities {
		byType[a.ActivityType] = a
	}
	start := byType[model.ActivityAssessmentStart]
	assert.Equal(t, "lead_score", start.Metadata["assessment_type"])
	assert.Equal(t, "/tools", start.Metadata["page_url"])

	view := byType[model.ActivityPageView]
	assert.Equal(t, "cta_click", view.Metadata["event"])
	assert.Equal(t, "journey-test", view.Metadata["user_agent"])
	assert.Equal(t, "10.0.0.1", view.Metadata["ip"])
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	w := env.do(t, http.MethodPost, "/api/assessments",
		`{"email":"a@b.com","app_type":"lead_score","input_data":{"website_url":"https://example.com"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/analytics/dashboard?timeframe=7d", "", cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "7d", body["timeframe"])
	overview := body["overview"].(map[string]any)
	assert.Equal(t, 1.0, overview["totalAssessments"])
	assert.Len(t, body["dailyStats"], 8)

	w = env.do(t, http.MethodGet, "/api/analytics/dashboard?timeframe=1y", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "30d", decode(t, w)["timeframe"])
}
