package authguard

import (
	"sync/atomic"
	"time"
)

// MetricID indexes the engine's fixed counter set.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricMFARequired
	MetricTokenIssued
	MetricTokenVerified
	MetricTokenRejected
	MetricTokenRevoked
	// MetricRevocationCheckFailed counts tokens rejected because the
	// revocation marker could not be read.
	MetricRevocationCheckFailed
	MetricRefreshSuccess
	MetricRefreshFailure
	// MetricRefreshRaceLost counts rotations that found their refresh record
	// already deleted by a concurrent caller.
	MetricRefreshRaceLost
	MetricSessionCreated
	MetricSessionTerminated
	MetricMFASuccess
	MetricMFAFailure
	MetricMFAReplay
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	MetricRateLimitHit
	MetricPasswordResetRequest
	MetricPasswordResetConsumed
	MetricPasswordResetInvalid
	MetricDeviceNew
	MetricSuspiciousActivity
	// MetricDegradedCheck counts advisory checks skipped because the cache
	// failed.
	MetricDegradedCheck
	MetricVerifyLatency
	metricIDCount
)

// latencyBounds are the inclusive upper edges of the verify-latency buckets.
// Anything slower lands in the final overflow bucket.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const latencyBucketCount = len(latencyBounds) + 1

// slot keeps each counter on its own cache line; the hot verify counters
// are hit from every request goroutine.
type slot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics is a lock-free counter set with one latency histogram. A nil or
// disabled Metrics ignores every call.
type Metrics struct {
	enabled bool
	latency bool
	slots   [metricIDCount]slot
	verify  [latencyBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy. Histogram buckets are not
// cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.slots[id].n.Add(1)
}

// Observe records d. Only MetricVerifyLatency carries a histogram; other
// IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricVerifyLatency {
		return
	}
	m.verify[latencyBucket(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.slots[id].n.Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}
	for id := range m.slots {
		s.Counters[MetricID(id)] = m.slots[id].n.Load()
	}
	if m.latency {
		buckets := make([]uint64, latencyBucketCount)
		for i := range buckets {
			buckets[i] = m.verify[i].Load()
		}
		s.Histograms[MetricVerifyLatency] = buckets
	}
	return s
}

func latencyBucket(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
