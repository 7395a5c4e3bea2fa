package monitoring

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

const defaultBlockThreshold = 50

// SuspiciousIP is one address with its suspicious request count.
type SuspiciousIP struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}

// SecurityMonitor counts suspicious requests per client address and blocks
// an address once its count reaches the threshold.
type SecurityMonitor struct {
	mu         sync.RWMutex
	threshold  int
	suspicious map[string]int
	blocked    map[string]bool
}

// NewSecurityMonitor creates a monitor that blocks after threshold reports.
// A non-positive threshold uses 50.
func NewSecurityMonitor(threshold int) *SecurityMonitor {
	if threshold <= 0 {
		threshold = defaultBlockThreshold
	}
	return &SecurityMonitor{
		threshold:  threshold,
		suspicious: make(map[string]int),
		blocked:    make(map[string]bool),
	}
}

// Report records one suspicious request from ip and reports whether the
// address is now blocked.
func (m *SecurityMonitor) Report(ip, activity string) bool {
	m.mu.Lock()
	m.suspicious[ip]++
	count := m.suspicious[ip]
	newlyBlocked := count >= m.threshold && !m.blocked[ip]
	if newlyBlocked {
		m.blocked[ip] = true
	}
	blocked := m.blocked[ip]
	m.mu.Unlock()

	zap.L().Warn("monitoring: suspicious activity detected",
		zap.String("ip", ip),
		zap.String("activity", activity),
		zap.Int("count", count),
	)
	if newlyBlocked {
		zap.L().Error("monitoring: ip blocked due to suspicious activity", zap.String("ip", ip))
	}
	return blocked
}

// IsBlocked reports whether ip is blocked.
func (m *SecurityMonitor) IsBlocked(ip string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blocked[ip]
}

// Unblock lifts a block and resets the address's count.
func (m *SecurityMonitor) Unblock(ip string) {
	m.mu.Lock()
	delete(m.blocked, ip)
	delete(m.suspicious, ip)
	m.mu.Unlock()
	zap.L().Info("monitoring: ip unblocked", zap.String("ip", ip))
}

// Blocked lists blocked addresses in sorted order.
func (m *SecurityMonitor) Blocked() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.blocked))
	for ip := range m.blocked {
		out = append(out, ip)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Suspicious lists every reported address, highest count first.
func (m *SecurityMonitor) Suspicious() []SuspiciousIP {
	m.mu.RLock()
	out := make([]SuspiciousIP, 0, len(m.suspicious))
	for ip, n := range m.suspicious {
		out = append(out, SuspiciousIP{IP: ip, Count: n})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].IP < out[j].IP
	})
	return out
}
