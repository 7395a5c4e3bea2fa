package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruonline/leadgen/internal/narrative"
	"github.com/maruonline/leadgen/internal/scrape"
)

const auditPage = `<!DOCTYPE html>
<html><head>
<title>Acme Plumbing | Cape Town</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="description" content="Emergency plumbing, geyser installs and leak detection across Cape Town, seven days a week.">
<script src="https://www.googletagmanager.com/gtag/js?id=G-1"></script>
</head><body>
<header><nav><a href="/">Home</a></nav></header>
<main><h1>Plumbers you can trust</h1><h2>Services</h2>
<form><input type="email" name="email"><button>Get a quote</button></form>
</main><footer>Acme</footer>
</body></html>`

func withLocalFetcher() envOption {
	return func(d *Deps) {
		d.Fetcher = scrape.NewFetcher(scrape.NewChain(scrape.NewLocalScraper()))
	}
}

func siteServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyzeWebsite_AuditsLivePage(t *testing.T) {
	srv := siteServer(t, http.StatusOK, auditPage)
	env := newTestEnv(t, withLocalFetcher())

	w := env.do(t, http.MethodPost, "/api/analyze-website", fmt.Sprintf(`{"url":%q}`, srv.URL))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := decode(t, w)
	assert.Equal(t, "local_http", out["source"])
	assert.NotEmpty(t, out["tier"])

	scores := out["scores"].(map[string]any)
	assert.Len(t, scores, len(scrape.AuditCategories))
	total := 0.0
	for _, c := range scrape.AuditCategories {
		total += scores[c].(float64)
	}
	assert.Equal(t, total, out["totalScore"])

	details := out["details"].(map[string]any)
	assert.Contains(t, details["technical"], "✗ No HTTPS - security risk")
	assert.Contains(t, details["integration"], "✓ Google Analytics/Tag Manager detected")
}

func TestAnalyzeWebsite_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing url", `{}`, "Valid URL is required"},
		{"blank url", `{"url":"  "}`, "Valid URL is required"},
		{"unparseable url", `{"url":"not a url"}`, "Invalid URL format"},
		{"unsupported scheme", `{"url":"ftp://example.com"}`, "Invalid URL format"},
		{"malformed body", `{`, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(t, http.MethodPost, "/api/analyze-website", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, decode(t, w)["error"])
		})
	}
}

func TestAnalyzeWebsite_UpstreamFailure(t *testing.T) {
	srv := siteServer(t, http.StatusInternalServerError, auditPage)
	env := newTestEnv(t, withLocalFetcher())

	w := env.do(t, http.MethodPost, "/api/analyze-website", fmt.Sprintf(`{"url":%q}`, srv.URL))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Failed to fetch website", decode(t, w)["error"])
}

func TestAnalyzeWebsite_NoScraperConfigured(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/analyze-website", `{"url":"example.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Failed to fetch website", decode(t, w)["error"])
}

func TestAnalyzeWebsite_Timeout(t *testing.T) {
	env := newTestEnv(t, withStalledUpstreams(50*time.Millisecond, 50*time.Millisecond, time.Second))

	w := env.do(t, http.MethodPost, "/api/analyze-website", `{"url":"https://slow.example.com"}`)
	assert.Equal(t, http.StatusRequestTimeout, w.Code)
	assert.Equal(t, "Request timeout - website took too long to respond", decode(t, w)["error"])
}

func TestAnalyzeLeadGen_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing email", `{"website_url":"https://acme.com"}`, "Email and Website URL are required"},
		{"missing url", `{"email":"a@b.com"}`, "Email and Website URL are required"},
		{"malformed email", `{"email":"nope","website_url":"https://acme.com"}`, "Validation failed"},
		{"bad url", `{"email":"a@b.com","website_url":"ftp://acme.com"}`, "Invalid URL format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(t, http.MethodPost, "/api/analyze-lead-gen", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, decode(t, w)["error"])
		})
	}
}

func TestAnalyzeLeadGen_ScoresAndReports(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/analyze-lead-gen", `{
		"email": "Owner@Acme.com",
		"website_url": "acme.com",
		"company_name": "Acme",
		"industry": "Plumbing",
		"has_crm": "no",
		"has_strategy": "no",
		"review_frequency": "never",
		"main_challenge": "Too few enquiries"
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := decode(t, w)
	assert.Equal(t, true, out["success"])
	assert.NotEmpty(t, out["analysisId"])

	results := out["results"].(map[string]any)
	assert.Equal(t, out["score"], results["score"])
	assert.Equal(t, scrape.SourceFallback, results["dataSource"])
	assert.NotEmpty(t, results["recommendations"])
	company := results["company"].(map[string]any)
	assert.Equal(t, "https://acme.com", company["website"])
}

func TestLeadGenAnswers_FoldsQuickCheck(t *testing.T) {
	req := analyzeLeadGenRequest{
		HasCRM:          "No",
		HasStrategy:     "yes",
		ReviewFrequency: "yearly",
		MainChallenge:   "Slow follow-up",
		LeadGenMethods:  []string{"SEO", " "},
	}
	a := req.answers()
	assert.Equal(t, []string{"Slow follow-up", "No CRM in place", "Lead performance rarely reviewed"}, a.Challenges)
	assert.Equal(t, []string{"SEO"}, a.LeadGenMethods)
}

func TestChat_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing messages", `{}`, "Messages array is required"},
		{"messages not an array", `{"messages":"hi"}`, "Messages array is required"},
		{"empty messages", `{"messages":[]}`, "Validation failed"},
		{"unknown role", `{"messages":[{"role":"system","content":"hi"}]}`, "Validation failed"},
		{"empty content", `{"messages":[{"role":"user","content":""}]}`, "Validation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(t, http.MethodPost, "/api/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, decode(t, w)["error"])
		})
	}
}

func TestChat_FallbackReply(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/chat",
		`{"messages":[{"role":"user","content":"Hi"},{"role":"assistant","content":"Hello!"},{"role":"user","content":"What does pricing look like?"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := decode(t, w)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, narrative.ProviderFallback, out["provider"])
	assert.Equal(t, narrative.FallbackChatReply("What does pricing look like?"), out["response"])
	assert.NotEmpty(t, out["degraded"])
}
