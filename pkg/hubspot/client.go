// Package hubspot is a client for the HubSpot CRM v3 contacts API.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.hubapi.com"

// Client defines the contact operations used by CRM sync.
type Client interface {
	SearchContactByEmail(ctx context.Context, email string) (*Contact, error)
	CreateContact(ctx context.Context, props map[string]string) (*Contact, error)
	UpdateContact(ctx context.Context, id string, props map[string]string) (*Contact, error)
}

// Contact is a HubSpot contact object.
type Contact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit"`
}

type searchResponse struct {
	Total   int       `json:"total"`
	Results []Contact `json:"results"`
}

type propertiesBody struct {
	Properties map[string]string `json:"properties"`
}

// APIError is returned when HubSpot responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hubspot: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default limit of 10 requests per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a HubSpot client authenticated with a private app token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchContactByEmail(ctx context.Context, email string) (*Contact, error) {
	req := searchRequest{
		FilterGroups: []filterGroup{{Filters: []filter{{PropertyName: "email", Operator: "EQ", Value: email}}}},
		Properties:   []string{"email", "firstname", "lastname", "company"},
		Limit:        1,
	}
	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", req, &resp); err != nil {
		return nil, eris.Wrap(err, "hubspot: search contact")
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

func (c *httpClient) CreateContact(ctx context.Context, props map[string]string) (*Contact, error) {
	var out Contact
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts", propertiesBody{Properties: props}, &out); err != nil {
		return nil, eris.Wrap(err, "hubspot: create contact")
	}
	return &out, nil
}

func (c *httpClient) UpdateContact(ctx context.Context, id string, props map[string]string) (*Contact, error) {
	var out Contact
	path := "/crm/v3/objects/contacts/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, path, propertiesBody{Properties: props}, &out); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("hubspot: update contact %s", id))
	}
	return &out, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit wait")
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return eris.Wrap(err, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}
