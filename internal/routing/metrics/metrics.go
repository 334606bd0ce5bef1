package metrics

import (
	"sync"
	"time"
)

// Metrics represents the metrics for a route modifier
type Metrics struct {
	RouteOperations int64
	SuccessfulOps   int64
	FailedOps       int64
	RejectedOps     int64
	Lookups         int64
	FailedLookups   int64
	AverageOpTime   time.Duration
	LastUpdate      time.Time
	mutex           sync.RWMutex
}

// Stats is a point-in-time copy of Metrics
type Stats struct {
	RouteOperations int64
	SuccessfulOps   int64
	FailedOps       int64
	RejectedOps     int64
	Lookups         int64
	FailedLookups   int64
	AverageOpTime   time.Duration
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		LastUpdate: time.Now(),
	}
}

// RecordOperation records a route mutation that reached the kernel
func (m *Metrics) RecordOperation(duration time.Duration, success bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.RouteOperations++
	if success {
		m.SuccessfulOps++
	} else {
		m.FailedOps++
	}

	calls := m.SuccessfulOps + m.FailedOps
	m.AverageOpTime += (duration - m.AverageOpTime) / time.Duration(calls)

	m.LastUpdate = time.Now()
}

// RecordRejection records a route mutation stopped before the kernel call
func (m *Metrics) RecordRejection() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.RouteOperations++
	m.RejectedOps++
	m.LastUpdate = time.Now()
}

// RecordLookup records an interface identity query
func (m *Metrics) RecordLookup(success bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.Lookups++
	if !success {
		m.FailedLookups++
	}
	m.LastUpdate = time.Now()
}

// GetStats returns the metrics statistics
func (m *Metrics) GetStats() Stats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return Stats{
		RouteOperations: m.RouteOperations,
		SuccessfulOps:   m.SuccessfulOps,
		FailedOps:       m.FailedOps,
		RejectedOps:     m.RejectedOps,
		Lookups:         m.Lookups,
		FailedLookups:   m.FailedLookups,
		AverageOpTime:   m.AverageOpTime,
	}
}

// Add folds another snapshot into s. Averages are weighted by kernel call count.
func (s Stats) Add(o Stats) Stats {
	var avg time.Duration
	n1 := s.SuccessfulOps + s.FailedOps
	n2 := o.SuccessfulOps + o.FailedOps
	if n := n1 + n2; n > 0 {
		avg = (s.AverageOpTime*time.Duration(n1) + o.AverageOpTime*time.Duration(n2)) / time.Duration(n)
	}
	return Stats{
		RouteOperations: s.RouteOperations + o.RouteOperations,
		SuccessfulOps:   s.SuccessfulOps + o.SuccessfulOps,
		FailedOps:       s.FailedOps + o.FailedOps,
		RejectedOps:     s.RejectedOps + o.RejectedOps,
		Lookups:         s.Lookups + o.Lookups,
		FailedLookups:   s.FailedLookups + o.FailedLookups,
		AverageOpTime:   avg,
	}
}

// Fields flattens the snapshot for structured logging
func (s Stats) Fields() map[string]interface{} {
	return map[string]interface{}{
		"route_operations": s.RouteOperations,
		"successful_ops":   s.SuccessfulOps,
		"failed_ops":       s.FailedOps,
		"rejected_ops":     s.RejectedOps,
		"lookups":          s.Lookups,
		"failed_lookups":   s.FailedLookups,
		"avg_op_time_us":   s.AverageOpTime.Microseconds(),
	}
}
