package scrape

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/maruonline/leadgen/pkg/firecrawl"
)

// FirecrawlAdapter wraps a Firecrawl client as a Scraper. It asks for the
// full page HTML because signal extraction needs navigation, footer and
// script tags that main-content mode strips.
type FirecrawlAdapter struct {
	client firecrawl.Client
}

// NewFirecrawlAdapter creates a FirecrawlAdapter from a Firecrawl client.
func NewFirecrawlAdapter(client firecrawl.Client) *FirecrawlAdapter {
	return &FirecrawlAdapter{client: client}
}

// Name implements Scraper.
func (f *FirecrawlAdapter) Name() string { return "firecrawl" }

// Supports implements Scraper.
func (f *FirecrawlAdapter) Supports(_ string) bool { return true }

func firecrawlRequest(targetURL string) firecrawl.ScrapeRequest {
	return firecrawl.ScrapeRequest{
		URL:             targetURL,
		Formats:         []string{"markdown", "html"},
		OnlyMainContent: false,
		WaitFor:         3000,
		Timeout:         30000,
	}
}

// Scrape fetches a single URL via Firecrawl's scrape API.
func (f *FirecrawlAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := f.client.Scrape(ctx, firecrawlRequest(targetURL))
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, eris.Errorf("firecrawl: scrape not successful: %s", resp.Error)
	}

	meta := resp.Data.Metadata
	if meta.StatusCode >= 400 {
		return nil, eris.Errorf("firecrawl: target returned status %d", meta.StatusCode)
	}

	html := resp.Data.HTML
	if html == "" {
		html = resp.Data.RawHTML
	}
	pageURL := meta.SourceURL
	if pageURL == "" {
		pageURL = targetURL
	}

	return &Result{
		Page: Page{
			URL:         pageURL,
			Title:       meta.Title,
			Description: meta.Description,
			HTML:        html,
			Markdown:    resp.Data.Markdown,
			StatusCode:  meta.StatusCode,
		},
		Source: "firecrawl",
	}, nil
}
