package pool

import (
	"time"

	"github.com/arannis/docpool/internal/metrics"
)

// StatsSnapshot is a consistent point-in-time copy of a pool's counters and
// gauges. All fields are read under the pool lock by (*Pool).Stats.
type StatsSnapshot struct {
	Acquisitions       uint64
	Releases           uint64
	Timeouts           uint64
	Errors             uint64
	ConnectionsCreated uint64
	ConnectionsClosed  uint64
	HealthChecks       uint64
	UnhealthyDetected  uint64

	CurrentSize    int
	CurrentInUse   int
	PeakInUse      int
	PeakSize       int
	CurrentWaiters int
	PeakWaiters    int
}

// statsRecorder holds the mutable counters. It is a field of Pool and every
// method assumes the pool lock is already held by the caller.
type statsRecorder struct {
	name string
	StatsSnapshot
}

func newStatsRecorder(name string) statsRecorder {
	return statsRecorder{name: name}
}

func (s *statsRecorder) recordAcquisition() {
	s.Acquisitions++
	metrics.ConnectionsTotal.WithLabelValues(s.name, "acquired").Inc()
}

func (s *statsRecorder) recordRelease() {
	s.Releases++
	metrics.ConnectionsTotal.WithLabelValues(s.name, "released").Inc()
}

func (s *statsRecorder) recordTimeout() {
	s.Timeouts++
	metrics.ConnectionsTotal.WithLabelValues(s.name, "timeout").Inc()
}

func (s *statsRecorder) recordError(errType string) {
	s.Errors++
	metrics.ConnectionErrors.WithLabelValues(s.name, errType).Inc()
}

func (s *statsRecorder) recordConnectionCreated() {
	s.ConnectionsCreated++
}

func (s *statsRecorder) recordConnectionClosed() {
	s.ConnectionsClosed++
}

func (s *statsRecorder) recordHealthCheck(result string) {
	s.HealthChecks++
	metrics.HealthChecks.WithLabelValues(s.name, result).Inc()
}

// recordQueueWait observes how long an acquirer spent enrolled as a waiter
// before being served. Waiters that time out are not observed.
func (s *statsRecorder) recordQueueWait(d time.Duration) {
	metrics.QueueWaitDuration.WithLabelValues(s.name).Observe(d.Seconds())
}

func (s *statsRecorder) recordUnhealthyDetected() {
	s.UnhealthyDetected++
}

// syncGauges recomputes the level-triggered gauges from the pool's current
// set sizes and mirrors them to Prometheus. Called under the pool lock after
// every state transition that changes connections/idle/waiters.
func (s *statsRecorder) syncGauges(size, inUse, waiters int) {
	s.CurrentSize = size
	s.CurrentInUse = inUse
	s.CurrentWaiters = waiters
	if inUse > s.PeakInUse {
		s.PeakInUse = inUse
	}
	if size > s.PeakSize {
		s.PeakSize = size
	}
	if waiters > s.PeakWaiters {
		s.PeakWaiters = waiters
	}

	metrics.ConnectionsActive.WithLabelValues(s.name).Set(float64(inUse))
	metrics.ConnectionsIdle.WithLabelValues(s.name).Set(float64(size - inUse))
	metrics.QueueLength.WithLabelValues(s.name).Set(float64(waiters))
}

// snapshot returns a value copy of the current stats.
func (s *statsRecorder) snapshot() StatsSnapshot {
	return s.StatsSnapshot
}
