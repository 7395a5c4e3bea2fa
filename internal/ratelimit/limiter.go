package ratelimit

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Limiter applies Policies to requests using a Store.
type Limiter struct {
	store    Store
	policies Policies
	now      func() time.Time
	onDeny   func(clientIP, endpoint string)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithPolicies replaces the default policy table.
func WithPolicies(p Policies) Option {
	return func(l *Limiter) { l.policies = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithDenyHook is called for every denied request.
func WithDenyHook(fn func(clientIP, endpoint string)) Option {
	return func(l *Limiter) { l.onDeny = fn }
}

// New creates a Limiter backed by store.
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:    store,
		policies: DefaultPolicies(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow counts one request from clientIP against endpoint. Store failures
// allow the request.
func (l *Limiter) Allow(ctx context.Context, clientIP, endpoint string) Decision {
	policy := l.policies.For(endpoint)
	now := l.now()

	d, err := l.store.Take(ctx, clientIP+":"+endpoint, policy, now)
	if err != nil {
		zap.L().Warn("ratelimit: store unavailable, allowing request",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return Decision{Allowed: true, Limit: policy.Limit, Remaining: policy.Limit, ResetAt: now.Add(policy.Window)}
	}

	if !d.Allowed && l.onDeny != nil {
		l.onDeny(clientIP, endpoint)
	}
	return d
}

// Purge removes expired entries when the store supports it.
func (l *Limiter) Purge(ctx context.Context) error {
	p, ok := l.store.(Purger)
	if !ok {
		return nil
	}
	return p.Purge(ctx, l.now())
}

// Middleware limits requests to endpoint, or to the request path when
// endpoint is empty. Rate limit headers are set on every response.
func (l *Limiter) Middleware(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ep := endpoint
			if ep == "" {
				ep = r.URL.Path
			}

			d := l.Allow(r.Context(), ClientIP(r), ep)
			SetHeaders(w.Header(), d)

			if !d.Allowed {
				retry := int(math.Ceil(d.ResetAt.Sub(l.now()).Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success":     false,
					"error":       "Too many requests. Please try again later.",
					"retry_after": retry,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetHeaders writes the X-RateLimit-* headers for d.
func SetHeaders(h http.Header, d Decision) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", d.ResetAt.UTC().Format(time.RFC3339))
}

// ClientIP returns the first X-Forwarded-For address, then X-Real-IP, then
// the connection's remote host.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
