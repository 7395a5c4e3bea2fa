package firecrawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-api-key", WithBaseURL(srv.URL))
	return srv, c
}

func TestScrape(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantTitle  string
		wantErr    bool
		wantAPIErr bool
		wantStatus int
	}{
		{
			name: "happy path",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/scrape", r.URL.Path)
				assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var req ScrapeRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "https://example.com", req.URL)
				assert.Equal(t, []string{"markdown", "html"}, req.Formats)

				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"success":true,"data":{"markdown":"# Hi","html":"<h1>Hi</h1>","metadata":{"title":"Example","description":"Desc","sourceURL":"https://example.com","statusCode":200}}}`))
			},
			wantTitle: "Example",
		},
		{
			name: "auth error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"Unauthorized"}`))
			},
			wantErr:    true,
			wantAPIErr: true,
			wantStatus: 401,
		},
		{
			name: "payment required",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusPaymentRequired)
				w.Write([]byte(`{"error":"Insufficient credits"}`))
			},
			wantErr:    true,
			wantAPIErr: true,
			wantStatus: 402,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"internal server error"}`))
			},
			wantErr:    true,
			wantAPIErr: true,
			wantStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := newTestServer(t, tt.handler)
			resp, err := c.Scrape(context.Background(), ScrapeRequest{
				URL:     "https://example.com",
				Formats: []string{"markdown", "html"},
			})

			if tt.wantErr {
				require.Error(t, err)
				if tt.wantAPIErr {
					var apiErr *APIError
					require.ErrorAs(t, err, &apiErr)
					assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
				}
				return
			}

			require.NoError(t, err)
			assert.True(t, resp.Success)
			assert.Equal(t, tt.wantTitle, resp.Data.Metadata.Title)
			assert.Equal(t, "<h1>Hi</h1>", resp.Data.HTML)
			assert.Equal(t, 200, resp.Data.Metadata.StatusCode)
		})
	}
}

func TestContextCancellation(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should have been cancelled")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Scrape(ctx, ScrapeRequest{URL: "https://example.com"})
	require.Error(t, err)
}

func TestAPIError_Error(t *testing.T) {
	t.Parallel()
	e := &APIError{StatusCode: 429, Body: `{"error":"rate limited"}`}
	assert.Equal(t, `firecrawl: HTTP 429: {"error":"rate limited"}`, e.Error())
}

func TestOptions(t *testing.T) {
	t.Parallel()
	customClient := &http.Client{}
	c := NewClient("key", WithHTTPClient(customClient), WithBaseURL(""), WithRateLimit(1, 2))
	hc := c.(*httpClient)
	assert.Equal(t, customClient, hc.http)
	assert.Equal(t, defaultBaseURL, hc.baseURL)
	assert.Equal(t, 2, hc.limiter.Burst())
}

func TestMalformedJSON(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{not json`))
	})

	_, err := c.Scrape(context.Background(), ScrapeRequest{URL: "https://example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}
