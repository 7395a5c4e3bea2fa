package scrape

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

const localBodyLimit = 2 << 20

// LocalScraper fetches HTML directly over net/http. It is the free last
// resort after the hosted scraper and gives up on bot-protected pages.
type LocalScraper struct {
	client *http.Client
}

// NewLocalScraper creates a LocalScraper with sensible defaults.
func NewLocalScraper() *LocalScraper {
	return &LocalScraper{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (l *LocalScraper) Name() string { return "local_http" }

// Supports accepts absolute http(s) URLs only.
func (l *LocalScraper) Supports(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// Scrape fetches a URL, rejects blocked or empty pages and keeps the raw
// HTML alongside a plaintext rendering.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; LeadgenBot/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, localBodyLimit))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}
	elapsed := time.Since(start)

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("local_http: blocked (%s)", blockType)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}
	if len(body) < 100 {
		return nil, eris.New("local_http: empty page")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: parse html")
	}

	finalURL := targetURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Result{
		Page: Page{
			URL:         finalURL,
			Title:       strings.TrimSpace(doc.Find("title").First().Text()),
			Description: metaContent(doc, "description"),
			HTML:        string(body),
			Markdown:    plainText(doc),
			StatusCode:  resp.StatusCode,
		},
		Source:  "local_http",
		Elapsed: elapsed,
	}, nil
}

func metaContent(doc *goquery.Document, name string) string {
	content, _ := doc.Find(`meta[name="` + name + `"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

// blockElements break text when rendered, so adjacent blocks must not run
// together in plainText.
const blockElements = "address, article, aside, blockquote, br, dd, div, dl, dt, " +
	"figcaption, figure, form, h1, h2, h3, h4, h5, h6, header, hr, li, main, " +
	"ol, p, pre, section, table, td, th, tr, ul"

// plainText renders visible body text with boilerplate regions removed and
// whitespace collapsed.
func plainText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, nav, footer").Remove()
	body.Find(blockElements).BeforeHtml(" ").AfterHtml(" ")
	return strings.Join(strings.Fields(body.Text()), " ")
}
