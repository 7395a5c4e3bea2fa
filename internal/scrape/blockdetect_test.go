package scrape

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name   string
		resp   *http.Response
		body   string
		want   bool
		wantBT BlockType
	}{
		{"nil response", nil, "", false, BlockNone},
		{"cloudflare 403 ray", &http.Response{StatusCode: 403, Header: http.Header{"Cf-Ray": {"abc"}}}, "", true, BlockCloudflare},
		{"cloudflare 503 server", &http.Response{StatusCode: 503, Header: http.Header{"Server": {"Cloudflare"}}}, "", true, BlockCloudflare},
		{"challenge page", &http.Response{StatusCode: 200, Header: http.Header{}}, "<p>Checking your browser before accessing</p>", true, BlockCloudflare},
		{"captcha", &http.Response{StatusCode: 200, Header: http.Header{}}, `<div class="g-recaptcha"></div>`, true, BlockCaptcha},
		{"js shell", &http.Response{StatusCode: 200, Header: http.Header{}}, "<html><noscript>Enable JavaScript to continue</noscript></html>", true, BlockJSShell},
		{"meta refresh", &http.Response{StatusCode: 200, Header: http.Header{}}, `<meta http-equiv="refresh" content="0;url=/app">`, true, BlockJSShell},
		{"403 without markers", &http.Response{StatusCode: 403, Header: http.Header{}}, "<p>Forbidden</p>", false, BlockNone},
		{"clean page", &http.Response{StatusCode: 200, Header: http.Header{}}, "<html><body>Welcome to Acme Corp. We build great products.</body></html>", false, BlockNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocked, bt := DetectBlock(tt.resp, []byte(tt.body))
			assert.Equal(t, tt.want, blocked)
			assert.Equal(t, tt.wantBT, bt)
		})
	}
}
