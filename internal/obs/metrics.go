package obs

import (
	"sync/atomic"
	"time"
)

// Metrics collects lightweight dispatcher counters and latency stats.
type Metrics struct {
	received      uint64
	handled       uint64
	failed        uint64
	panics        uint64
	replies       uint64
	replyFailures uint64
	fetchFailures uint64
	conversations uint64

	fetchLatency  LatencyStats
	handleLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Received      uint64
	Handled       uint64
	Failed        uint64
	Panics        uint64
	Replies       uint64
	ReplyFailures uint64
	FetchFailures uint64
	Conversations uint64
	FetchLatency  LatencySnapshot
	HandleLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// AddReceived counts updates accepted from a fetch.
func (m *Metrics) AddReceived(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.received, uint64(n))
}

// ObserveHandle records one handled update and its latency. failed marks
// updates whose handler returned an error.
func (m *Metrics) ObserveHandle(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.handled, 1)
	if failed {
		atomic.AddUint64(&m.failed, 1)
	}
	m.handleLatency.Observe(d)
}

// IncPanic records a recovered handler panic.
func (m *Metrics) IncPanic() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.panics, 1)
}

// IncReply records a delivered reply.
func (m *Metrics) IncReply() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.replies, 1)
}

// IncReplyFailure records a reply the sink refused or timed out on.
func (m *Metrics) IncReplyFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.replyFailures, 1)
}

// IncFetchFailure records a failed fetch.
func (m *Metrics) IncFetchFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.fetchFailures, 1)
}

// IncConversation records a newly seen conversation queue.
func (m *Metrics) IncConversation() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.conversations, 1)
}

// ObserveFetch measures a fetch round trip.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.fetchLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Received:      atomic.LoadUint64(&m.received),
		Handled:       atomic.LoadUint64(&m.handled),
		Failed:        atomic.LoadUint64(&m.failed),
		Panics:        atomic.LoadUint64(&m.panics),
		Replies:       atomic.LoadUint64(&m.replies),
		ReplyFailures: atomic.LoadUint64(&m.replyFailures),
		FetchFailures: atomic.LoadUint64(&m.fetchFailures),
		Conversations: atomic.LoadUint64(&m.conversations),
		FetchLatency:  m.fetchLatency.Snapshot(),
		HandleLatency: m.handleLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		lo := atomic.LoadUint64(&l.min)
		if lo != 0 && nanos >= lo {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, lo, nanos) {
			break
		}
	}

	for {
		hi := atomic.LoadUint64(&l.max)
		if nanos <= hi {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, hi, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
