package redpanda

import (
	"math"
	"sync"
	"time"
)

// AdaptivePoller adjusts the fetch interval from recent poll outcomes.
// Consecutive failures back the interval off multiplicatively, sustained
// success shrinks it toward the minimum, and a run of ten failures pins the
// interval at the maximum until successes resume.
type AdaptivePoller struct {
	mu                 sync.RWMutex
	baseInterval       time.Duration
	maxInterval        time.Duration
	minInterval        time.Duration
	backoffFactor      float64
	successCount       int
	failureCount       int
	consecutiveSuccess int
	consecutiveFailure int
	lastPollTime       time.Time
	healthy            bool
}

// NewAdaptivePoller creates a poller starting at baseInterval.
func NewAdaptivePoller(baseInterval time.Duration) *AdaptivePoller {
	return &AdaptivePoller{
		baseInterval:  baseInterval,
		maxInterval:   10 * time.Second,
		minInterval:   500 * time.Millisecond,
		backoffFactor: 1.2,
		healthy:       true,
	}
}

// GetNextInterval returns the interval to wait before the next poll.
func (ap *AdaptivePoller) GetNextInterval() time.Duration {
	ap.mu.Lock()
	defer ap.mu.Unlock()

	if ap.consecutiveFailure >= 10 {
		ap.healthy = false
		return ap.maxInterval
	}

	if ap.failureCount > ap.successCount {
		backoffMultiplier := math.Pow(ap.backoffFactor, float64(ap.consecutiveFailure))
		interval := float64(ap.baseInterval) * backoffMultiplier
		// Jitter avoids synchronized polling across workers.
		jitter := interval * 0.1 * (0.5 - math.Mod(float64(time.Now().UnixNano()), 1.0))
		interval += jitter
		if interval > float64(ap.maxInterval) {
			interval = float64(ap.maxInterval)
		}
		return time.Duration(interval)
	}

	successMultiplier := math.Max(0.5, 1.0/float64(ap.consecutiveSuccess+1))
	interval := float64(ap.baseInterval) * successMultiplier
	if interval < float64(ap.minInterval) {
		interval = float64(ap.minInterval)
	}
	ap.healthy = true
	return time.Duration(interval)
}

// RecordSuccess records a successful poll.
func (ap *AdaptivePoller) RecordSuccess() {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.successCount++
	ap.consecutiveSuccess++
	ap.consecutiveFailure = 0
	ap.lastPollTime = time.Now()
	ap.healthy = true
}

// RecordFailure records a failed poll.
func (ap *AdaptivePoller) RecordFailure() {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.failureCount++
	ap.consecutiveFailure++
	ap.consecutiveSuccess = 0
	ap.lastPollTime = time.Now()
	ap.healthy = false
}

// IsHealthy reports whether recent polling has been succeeding.
func (ap *AdaptivePoller) IsHealthy() bool {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	return ap.healthy
}

// Reset clears accumulated statistics.
func (ap *AdaptivePoller) Reset() {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.successCount = 0
	ap.failureCount = 0
	ap.consecutiveSuccess = 0
	ap.consecutiveFailure = 0
	ap.healthy = true
}
