package build

import (
	"sync"
	"time"
)

// Counters are the export totals.
type Counters struct {
	TotalPages    int64
	FailedPages   int64
	TotalBytes    int64
	Diagnostics   int64
	TotalDuration time.Duration
}

// Metrics tracks export performance.
type Metrics struct {
	mu sync.RWMutex
	Counters
}

// NewMetrics creates an empty metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordPage records one exported page.
func (m *Metrics) RecordPage(result Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalPages++
	if result.Error != nil {
		m.FailedPages++
	}
	m.TotalBytes += result.Bytes
	m.Diagnostics += int64(len(result.Diagnostics))
	m.TotalDuration += result.Duration
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Counters {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Counters
}

// Reset clears all counters.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Counters = Counters{}
}

// SuccessRate returns the percentage of pages exported without error.
func (m *Metrics) SuccessRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.TotalPages == 0 {
		return 0
	}
	return float64(m.TotalPages-m.FailedPages) / float64(m.TotalPages) * 100
}

// AverageDuration returns the mean render time per page.
func (m *Metrics) AverageDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.TotalPages == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(m.TotalPages)
}
