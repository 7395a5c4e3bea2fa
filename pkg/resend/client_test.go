package resend

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

func TestSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))

		var req SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"jane@acme.com"}, req.To)
		assert.Equal(t, "Your results", req.Subject)

		w.Write([]byte(`{"id":"email_123"}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient("re_test", WithBaseURL(srv.URL))
	resp, err := c.Send(context.Background(), SendRequest{
		From:    "Maru Online <noreply@maruonline.com>",
		To:      []string{"jane@acme.com"},
		Subject: "Your results",
		HTML:    "<p>hi</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "email_123", resp.ID)
}

func TestSend_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid from address"}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient("re_test", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.Send(context.Background(), SendRequest{To: []string{"x@y.z"}})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "invalid from address")
}
