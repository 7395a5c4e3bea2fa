package scrape

import (
	"context"
	"time"
)

// Page is the raw content of one fetched page.
type Page struct {
	URL         string
	Title       string
	Description string
	HTML        string
	Markdown    string
	StatusCode  int
}

// Result holds a fetched page with the scraper that produced it.
type Result struct {
	Page    Page
	Source  string // "firecrawl", "local_http"
	Elapsed time.Duration
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}
