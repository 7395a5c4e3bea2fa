package hubspot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("pat-test", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}

func TestSearchContactByEmail(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/crm/v3/objects/contacts/search", r.URL.Path)
		assert.Equal(t, "Bearer pat-test", r.Header.Get("Authorization"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.FilterGroups, 1)
		f := req.FilterGroups[0].Filters[0]
		assert.Equal(t, "email", f.PropertyName)
		assert.Equal(t, "EQ", f.Operator)
		assert.Equal(t, "jane@acme.com", f.Value)

		w.Write([]byte(`{"total":1,"results":[{"id":"501","properties":{"email":"jane@acme.com"}}]}`))
	})

	contact, err := c.SearchContactByEmail(context.Background(), "jane@acme.com")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "501", contact.ID)
	assert.Equal(t, "jane@acme.com", contact.Properties["email"])
}

func TestSearchContactByEmail_NoResults(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"total":0,"results":[]}`))
	})

	contact, err := c.SearchContactByEmail(context.Background(), "nobody@acme.com")
	require.NoError(t, err)
	assert.Nil(t, contact)
}

func TestCreateContact(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/crm/v3/objects/contacts", r.URL.Path)

		var body propertiesBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Acme", body.Properties["company"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"777","properties":{"company":"Acme"}}`))
	})

	contact, err := c.CreateContact(context.Background(), map[string]string{"email": "jane@acme.com", "company": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "777", contact.ID)
}

func TestUpdateContact(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/crm/v3/objects/contacts/501", r.URL.Path)
		w.Write([]byte(`{"id":"501","properties":{}}`))
	})

	contact, err := c.UpdateContact(context.Background(), "501", map[string]string{"lead_score_predictor": "64"})
	require.NoError(t, err)
	assert.Equal(t, "501", contact.ID)
}

func TestAPIError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":"error","message":"Authentication credentials not found"}`))
	})

	_, err := c.CreateContact(context.Background(), map[string]string{"email": "x@y.z"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hubspot: create contact")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestContextCancellation(t *testing.T) {
	c := NewClient("pat-test", WithBaseURL("http://127.0.0.1:1"), WithRateLimit(0.001, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.SearchContactByEmail(ctx, "jane@acme.com")
	assert.Error(t, err)
}
