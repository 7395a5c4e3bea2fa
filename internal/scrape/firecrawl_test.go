package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruonline/leadgen/pkg/firecrawl"
	firecrawlmocks "github.com/maruonline/leadgen/pkg/firecrawl/mocks"
)

func TestFirecrawlAdapter_NameAndSupports(t *testing.T) {
	t.Parallel()
	adapter := NewFirecrawlAdapter(firecrawlmocks.NewMockClient(t))
	assert.Equal(t, "firecrawl", adapter.Name())
	assert.True(t, adapter.Supports("https://example.com"))
}

func TestFirecrawlAdapter_Scrape_Success(t *testing.T) {
	t.Parallel()
	mock := firecrawlmocks.NewMockClient(t)
	adapter := NewFirecrawlAdapter(mock)

	mock.On("Scrape", context.Background(), firecrawl.ScrapeRequest{
		URL:             "https://acme.com",
		Formats:         []string{"markdown", "html"},
		OnlyMainContent: false,
		WaitFor:         3000,
		Timeout:         30000,
	}).Return(&firecrawl.ScrapeResponse{
		Success: true,
		Data: firecrawl.PageData{
			Markdown: "# Acme",
			HTML:     "<h1>Acme</h1>",
			Metadata: firecrawl.PageMetadata{
				Title:       "Acme Corp",
				Description: "We make anvils",
				SourceURL:   "https://www.acme.com/",
				StatusCode:  200,
			},
		},
	}, nil)

	result, err := adapter.Scrape(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "firecrawl", result.Source)
	assert.Equal(t, "https://www.acme.com/", result.Page.URL)
	assert.Equal(t, "Acme Corp", result.Page.Title)
	assert.Equal(t, "We make anvils", result.Page.Description)
	assert.Equal(t, "<h1>Acme</h1>", result.Page.HTML)
	assert.Equal(t, "# Acme", result.Page.Markdown)
	assert.Equal(t, 200, result.Page.StatusCode)
}

func TestFirecrawlAdapter_Scrape_RawHTMLAndURLFallback(t *testing.T) {
	t.Parallel()
	mock := firecrawlmocks.NewMockClient(t)
	adapter := NewFirecrawlAdapter(mock)

	mock.On("Scrape", context.Background(), firecrawlRequest("https://acme.com")).
		Return(&firecrawl.ScrapeResponse{
			Success: true,
			Data:    firecrawl.PageData{RawHTML: "<p>raw</p>"},
		}, nil)

	result, err := adapter.Scrape(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.com", result.Page.URL)
	assert.Equal(t, "<p>raw</p>", result.Page.HTML)
}

func TestFirecrawlAdapter_Scrape_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		resp    *firecrawl.ScrapeResponse
		err     error
		wantErr string
	}{
		{"client error", nil, errors.New("api error: rate limited"), "rate limited"},
		{"not successful", &firecrawl.ScrapeResponse{Success: false, Error: "blocked"}, nil, "scrape not successful"},
		{"target 404", &firecrawl.ScrapeResponse{Success: true, Data: firecrawl.PageData{Metadata: firecrawl.PageMetadata{StatusCode: 404}}}, nil, "status 404"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock := firecrawlmocks.NewMockClient(t)
			mock.On("Scrape", context.Background(), firecrawlRequest("https://fail.com")).Return(tt.resp, tt.err)

			_, err := NewFirecrawlAdapter(mock).Scrape(context.Background(), "https://fail.com")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
