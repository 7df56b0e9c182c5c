package utils

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// LatencyTracker stores recent duration samples and computes percentiles.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples []time.Duration
	maxSize int
}

// NewLatencyTracker creates a tracker storing up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &LatencyTracker{maxSize: maxSize}
}

// Observe records a run duration, evicting the oldest sample when full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples = append(l.samples, d)
	if len(l.samples) > l.maxSize {
		l.samples = append(l.samples[:0], l.samples[len(l.samples)-l.maxSize:]...)
	}
}

// Percentile returns the p-th percentile (0-100]. Returns zero without samples.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	data := make(stats.Float64Data, 0, len(l.samples))
	for _, s := range l.samples {
		data = append(data, float64(s))
	}
	l.mu.RUnlock()

	if len(data) == 0 {
		return 0
	}
	if p <= 0 {
		min, _ := data.Min()
		return time.Duration(min)
	}
	if p > 100 {
		p = 100
	}
	value, err := stats.Percentile(data, p)
	if err != nil {
		return 0
	}
	return time.Duration(value)
}

// Count returns number of samples recorded.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}
