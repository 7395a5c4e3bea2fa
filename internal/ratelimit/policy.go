// Package ratelimit implements fixed-window request limits keyed by client
// address and endpoint.
package ratelimit

import "time"

// Policy is the number of requests allowed per window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// DefaultPolicy applies to endpoints without a dedicated entry.
var DefaultPolicy = Policy{Limit: 60, Window: time.Minute}

// Policies maps an endpoint path to its limit.
type Policies map[string]Policy

// DefaultPolicies returns the built-in per-endpoint limits.
func DefaultPolicies() Policies {
	return Policies{
		"/api/assessments":         {Limit: 10, Window: time.Minute},
		"/api/hubspot/sync":        {Limit: 5, Window: time.Minute},
		"/api/email/send":          {Limit: 3, Window: time.Minute},
		"/api/analyze-website":     {Limit: 10, Window: time.Minute},
		"/api/analyze-lead-gen":    {Limit: 5, Window: time.Minute},
		"/api/chat":                {Limit: 30, Window: time.Minute},
		"/api/analytics/dashboard": {Limit: 30, Window: time.Minute},
		"/api/admin/leads":         {Limit: 20, Window: time.Minute},
	}
}

// For returns the policy of endpoint, or DefaultPolicy.
func (p Policies) For(endpoint string) Policy {
	if pol, ok := p[endpoint]; ok {
		return pol
	}
	return DefaultPolicy
}
