package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/maruonline/leadgen/internal/assessment"
	"github.com/maruonline/leadgen/internal/auth"
	"github.com/maruonline/leadgen/internal/crm"
	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/monitoring"
	"github.com/maruonline/leadgen/internal/narrative"
	"github.com/maruonline/leadgen/internal/notify"
	"github.com/maruonline/leadgen/internal/pipeline"
	"github.com/maruonline/leadgen/internal/ratelimit"
	"github.com/maruonline/leadgen/internal/scrape"
	"github.com/maruonline/leadgen/internal/store"
)

const (
	adminEmail    = "admin@maruonline.com"
	adminPassword = "correct horse"
)

type fakeSyncer struct {
	name     string
	contacts []crm.Contact
	result   crm.Result
	err      error
}

func (s *fakeSyncer) Name() string { return s.name }

func (s *fakeSyncer) Sync(_ context.Context, c crm.Contact) (crm.Result, error) {
	s.contacts = append(s.contacts, c)
	r := s.result
	r.Provider = s.name
	return r, s.err
}

type testEnv struct {
	store    store.Store
	handler  http.Handler
	security *monitoring.SecurityMonitor
	logs     *monitoring.LogBuffer
	hubspot  *fakeSyncer
}

type envOption func(*Deps)

func withPolicies(p ratelimit.Policies) envOption {
	return func(d *Deps) {
		d.Limiter = ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.WithPolicies(p))
	}
}

func withoutCRM() envOption {
	return func(d *Deps) { d.CRM = crm.NewMulti() }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	generator := narrative.NewGenerator(nil)
	fetcher := scrape.NewFetcher(nil)
	registry := assessment.NewRegistry(
		assessment.NewLeadScore(fetcher, generator),
		assessment.NewPipelineLeak(),
		assessment.NewProposal(generator),
		assessment.NewTechAudit(assessment.DefaultCatalog()),
	)

	env := &testEnv{
		store:    st,
		security: monitoring.NewSecurityMonitor(3),
		logs:     monitoring.NewLogBuffer(100, zapcore.InfoLevel),
		hubspot:  &fakeSyncer{name: "hubspot", result: crm.Result{ContactID: "hs-1", Created: true}},
	}

	d := Deps{
		Store:    st,
		Pipeline: pipeline.New(st, registry),
		Fetcher:  fetcher,
		Notifier: notify.New(nil, notify.Config{}),
		CRM:      crm.NewMulti(env.hubspot),
		Sessions: auth.NewSessions(auth.Config{Email: adminEmail, Password: adminPassword, Secret: "test-secret"}),
		Limiter:  ratelimit.New(ratelimit.NewMemoryStore()),
		Collector: monitoring.NewCollector(st, env.logs, env.security,
			monitoring.NewPerformanceMonitor()),
		AllowedOrigins: []string{"http://localhost:3000"},
		RequestTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&d)
	}
	env.handler = NewRouter(d)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/admin", `{"email":"`+adminEmail+`","password":"`+adminPassword+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/assessments", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAssessment_LeadScore(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/assessments",
		`{"email":"a@b.com","app_type":"lead_score","input_data":{"website_url":"https://example.com","company_name":"Acme"}}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	score := data["score"].(float64)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)
	assert.NotEmpty(t, data["recommendations"])
	assert.NotEmpty(t, data["assessment_id"])

	lead, err := env.store.GetLeadByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, lead.LeadScore)
	assert.Equal(t, int(score), *lead.LeadScore)
}

func TestAssessment_ValidationFailed(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/assessments", `{"email":"nope","app_type":"lead_score","input_data":{}}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Validation failed", body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestAssessment_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/assessments",
		`{"email":"ops@acme.com","app_type":"pipeline_leak","input_data":{"csv_data":"name,stage,amount\n"}}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.NotEqual(t, "Internal server error", body["error"])
	assert.NotContains(t, body["error"], "assessment: invalid input")
}

func TestAssessment_RateLimited(t *testing.T) {
	env := newTestEnv(t, withPolicies(ratelimit.Policies{
		"/api/assessments": {Limit: 2, Window: time.Minute},
	}))
	body := `{"email":"nope","app_type":"lead_score","input_data":{}}`

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodPost, "/api/assessments", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	w := env.do(t, http.MethodPost, "/api/assessments", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestScrapeWebsite(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/scrape-website", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "URL is required", decode(t, w)["error"])

	w = env.do(t, http.MethodPost, "/api/scrape-website", `{"url":"javascript:alert(1)"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid URL format", decode(t, w)["error"])

	w = env.do(t, http.MethodPost, "/api/scrape-website", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, scrape.SourceFallback, body["source"])
	assert.NotEmpty(t, body["degraded"])
	assert.NotNil(t, body["data"])
}

func TestCalculateScore(t *testing.T) {
	env := newTestEnv(t)
	req := `{
		"scrapeData": {"loadTime": 1.2, "mobileResponsive": true, "ctaButtons": [{"text":"Start","type":"primary"}],
			"forms": [], "leadMagnets": ["Free guide"], "liveChatPresent": true,
			"trustSignals": {"ssl": true, "privacyPolicy": true}},
		"assessmentData": {"monthlyVisitors": "10,000-50,000", "leadGenMethods": ["Email Marketing"], "challenges": [], "budget": "$1,000-$5,000"}
	}`

	first := decode(t, env.do(t, http.MethodPost, "/api/calculate-score", req))
	second := decode(t, env.do(t, http.MethodPost, "/api/calculate-score", req))

	assert.Equal(t, true, first["success"])
	assert.Equal(t, first, second)
	score := first["score"].(float64)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)
	assert.Contains(t, first, "subscores")
	assert.Contains(t, first, "bonusPoints")
	assert.Contains(t, first, "breakdown")

	w := env.do(t, http.MethodPost, "/api/calculate-score", `{"assessmentData":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTools(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/tools", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["data"])
}

func TestSendEmail_Simulated(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/send-email",
		`{"type":"Contact Form","data":{"name":"Ada","client_email":"ada@example.com","services":["AI","Web"]}}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Mock success (SMTP not configured)", body["message"])

	w = env.do(t, http.MethodPost, "/api/send-email", `{"data":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEmailSend(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		errMsg string
	}{
		{"missing email", `{"type":"follow_up"}`, http.StatusBadRequest, "Email and type required"},
		{"missing type", `{"email":"a@b.com"}`, http.StatusBadRequest, "Email and type required"},
		{"unknown type", `{"type":"newsletter","email":"a@b.com"}`, http.StatusBadRequest, "Invalid email type"},
		{"malformed email", `{"type":"follow_up","email":"not-an-address"}`, http.StatusBadRequest, "Validation failed"},
		{"assessment complete", `{"type":"assessment_complete","email":"a@b.com","contactInfo":{"first_name":"Ada"},"assessmentType":"pipeline_leak","assessmentData":{"revenueAtRisk":12000,"stalledDeals":3}}`, http.StatusOK, ""},
		{"follow up", `{"type":"follow_up","email":"a@b.com","assessmentType":"lead_score"}`, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// /api/email/send allows 3 requests a minute per client.
			env := newTestEnv(t)
			w := env.do(t, http.MethodPost, "/api/email/send", tt.body)
			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			if tt.errMsg != "" {
				assert.Equal(t, tt.errMsg, body["error"])
			} else {
				assert.Equal(t, true, body["success"])
			}
		})
	}
}

func TestEmailSend_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	body := `{"type":"follow_up","email":"a@b.com"}`
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/email/send", body).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodPost, "/api/email/send", body).Code)
}

func TestSendResults(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/send-results", `{"name":"Ada","results":{"score":40}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/send-results", `{
		"email":"ada@example.com","name":"Ada Lovelace",
		"results":{"score":40,"strengths":["Fast"],"gaps":["No forms"],
			"recommendations":{"phase1":["Add a form"],"phase2":["Nurture"],"phase3":["Scale"]},
			"potentialImprovement":60,"expectedIncrease":"3-4x more leads"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["success"])
}

func TestHubSpotSync(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lead, err := env.store.UpsertLead(ctx, "ada@example.com", model.LeadFields{FirstName: "Ada", CompanyName: "Acme"})
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/api/hubspot/sync", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Email is required", decode(t, w)["error"])

	w = env.do(t, http.MethodPost, "/api/hubspot/sync",
		`{"email":"ada@example.com","assessmentType":"pipeline_leak","assessmentData":{"leakScore":42}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "hs-1", body["contactId"])
	assert.Equal(t, "Contact created successfully", body["message"])

	require.Len(t, env.hubspot.contacts, 1)
	c := env.hubspot.contacts[0]
	assert.Equal(t, "Ada", c.FirstName)
	assert.Equal(t, "Acme", c.Company)
	require.NotNil(t, c.Assessment)
	assert.Equal(t, 42, *c.Assessment.Score)

	stored, err := env.store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "hs-1", stored.HubSpotContactID)
}

func TestHubSpotSync_UnknownLead(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/hubspot/sync", `{"email":"new@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, env.hubspot.contacts, 1)
	assert.Equal(t, 1, env.hubspot.contacts[0].AssessmentCount)
}

func TestHubSpotSync_NotConfigured(t *testing.T) {
	env := newTestEnv(t, withoutCRM())
	w := env.do(t, http.MethodPost, "/api/hubspot/sync", `{"email":"ada@example.com"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "HubSpot API not configured", body["message"])
}
