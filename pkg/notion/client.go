// Package notion mirrors leads into a Notion database.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client reads and writes rows of the lead mirror database.
type Client interface {
	// FindLeadPage returns the row whose Email property equals email, or nil
	// when there is none.
	FindLeadPage(ctx context.Context, dbID, email string) (*notionapi.Page, error)
	CreateLeadPage(ctx context.Context, dbID string, props notionapi.Properties) (*notionapi.Page, error)
	UpdateLeadPage(ctx context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error)
}

// ClientOption configures the Notion client.
type ClientOption func(*notionClient)

// WithRateLimit overrides the default of 3 requests per second. A
// non-positive rate disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type notionClient struct {
	inner   *notionapi.Client
	limiter *rate.Limiter
}

// NewClient creates a Notion client for an integration token, throttled to
// Notion's published limit of 3 requests per second.
func NewClient(token string, opts ...ClientOption) Client {
	c := &notionClient{
		inner:   notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(3, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *notionClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return eris.Wrap(c.limiter.Wait(ctx), "notion: rate limit")
}

func (c *notionClient) FindLeadPage(ctx context.Context, dbID, email string) (*notionapi.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.inner.Database.Query(ctx, notionapi.DatabaseID(dbID), emailQuery(email))
	if err != nil {
		return nil, eris.Wrapf(err, "notion: find lead %s", email)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

func (c *notionClient) CreateLeadPage(ctx context.Context, dbID string, props notionapi.Properties) (*notionapi.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.inner.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	})
	if err != nil {
		return nil, eris.Wrap(err, "notion: create lead page")
	}
	return page, nil
}

func (c *notionClient) UpdateLeadPage(ctx context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.inner.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Properties: props})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: update lead page %s", pageID)
	}
	return page, nil
}

// emailQuery matches rows by the Email column. Only the first hit is used.
func emailQuery(email string) *notionapi.DatabaseQueryRequest {
	return &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropEmail,
			RichText: &notionapi.TextFilterCondition{Equals: email},
		},
		PageSize: 1,
	}
}
