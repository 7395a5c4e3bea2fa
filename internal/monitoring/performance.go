package monitoring

import (
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

const samplesPerRoute = 100

// RouteMetrics summarises the recorded response times of one route in
// milliseconds.
type RouteMetrics struct {
	Avg   int64 `json:"avg"`
	Count int   `json:"count"`
	Max   int64 `json:"max"`
	Min   int64 `json:"min"`
}

// SlowRoute is a route whose average exceeds a threshold.
type SlowRoute struct {
	Endpoint string  `json:"endpoint"`
	AvgTime  float64 `json:"avgTime"`
}

// PerformanceMonitor keeps the last 100 response times per route.
type PerformanceMonitor struct {
	mu      sync.Mutex
	samples map[string][]time.Duration
}

// NewPerformanceMonitor creates an empty monitor.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{samples: make(map[string][]time.Duration)}
}

// Record adds one response time for route.
func (p *PerformanceMonitor) Record(route string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := append(p.samples[route], d)
	if len(s) > samplesPerRoute {
		s = s[len(s)-samplesPerRoute:]
	}
	p.samples[route] = s
}

func average(s []time.Duration) float64 {
	if len(s) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range s {
		sum += d
	}
	return float64(sum.Milliseconds()) / float64(len(s))
}

// Metrics returns per-route statistics.
func (p *PerformanceMonitor) Metrics() map[string]RouteMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]RouteMetrics, len(p.samples))
	for route, s := range p.samples {
		if len(s) == 0 {
			continue
		}
		m := RouteMetrics{Count: len(s), Min: s[0].Milliseconds(), Max: s[0].Milliseconds()}
		for _, d := range s[1:] {
			m.Min = min(m.Min, d.Milliseconds())
			m.Max = max(m.Max, d.Milliseconds())
		}
		m.Avg = int64(math.Round(average(s)))
		out[route] = m
	}
	return out
}

// Slow returns routes averaging above threshold, slowest first.
func (p *PerformanceMonitor) Slow(threshold time.Duration) []SlowRoute {
	p.mu.Lock()
	out := []SlowRoute{}
	for route, s := range p.samples {
		if avg := average(s); avg > float64(threshold.Milliseconds()) {
			out = append(out, SlowRoute{Endpoint: route, AvgTime: avg})
		}
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AvgTime > out[j].AvgTime })
	return out
}

// Middleware records the duration of every request under its chi route
// pattern, falling back to the raw path.
func (p *PerformanceMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		p.Record(r.Method+" "+route, time.Since(start))
	})
}
