package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) FindLeadPage(ctx context.Context, dbID, email string) (*notionapi.Page, error) {
	args := m.Called(ctx, dbID, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) CreateLeadPage(ctx context.Context, dbID string, props notionapi.Properties) (*notionapi.Page, error) {
	args := m.Called(ctx, dbID, props)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) UpdateLeadPage(ctx context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, props)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func TestMockClientSatisfiesInterface(t *testing.T) {
	t.Parallel()
	var _ Client = (*MockClient)(nil)
}

func TestNewClient_RateLimit(t *testing.T) {
	c := NewClient("test-token").(*notionClient)
	require.NotNil(t, c.limiter)
	assert.InDelta(t, 3.0, float64(c.limiter.Limit()), 0.001)

	c = NewClient("test-token", WithRateLimit(10)).(*notionClient)
	assert.Equal(t, 10, c.limiter.Burst())

	c = NewClient("test-token", WithRateLimit(0)).(*notionClient)
	assert.Nil(t, c.limiter)
	assert.NoError(t, c.wait(context.Background()))
}

func TestWait_CancelledContext(t *testing.T) {
	c := NewClient("test-token", WithRateLimit(0.001)).(*notionClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The first token is available immediately; the second must wait.
	_ = c.wait(context.Background())
	assert.ErrorContains(t, c.wait(ctx), "notion: rate limit")
}

func TestEmailQuery(t *testing.T) {
	q := emailQuery("jane@acme.com")
	assert.Equal(t, 1, q.PageSize)

	f, ok := q.Filter.(notionapi.PropertyFilter)
	require.True(t, ok)
	assert.Equal(t, PropEmail, f.Property)
	require.NotNil(t, f.RichText)
	assert.Equal(t, "jane@acme.com", f.RichText.Equals)
}
