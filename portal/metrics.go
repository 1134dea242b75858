package portal

import (
	"maps"
	"sync"
)

// Metrics tracks engine counters for observability. A nil *Metrics discards all updates.
type Metrics struct {
	mu sync.Mutex

	allowed      uint64
	denied       map[Reason]uint64
	triggers     map[Trigger]uint64
	backpressure uint64
	panics       uint64
	swept        uint64
	queue        int
}

// MetricsSnapshot is a copy of the counters of a Metrics.
type MetricsSnapshot struct {
	Allowed      uint64
	Denied       map[Reason]uint64
	Triggers     map[Trigger]uint64
	Backpressure uint64
	Panics       uint64
	Swept        uint64
	QueueSize    int
}

// NewMetrics creates an empty metrics registry.
func NewMetrics() *Metrics {
	return &Metrics{
		denied:   make(map[Reason]uint64),
		triggers: make(map[Trigger]uint64),
	}
}

// AddDecision counts a decision.
func (m *Metrics) AddDecision(d Decision) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if d.Allowed {
		m.allowed++
	} else {
		m.denied[d.Reason]++
	}
	m.mu.Unlock()
}

// IncTrigger increments the counter of a cooldown trigger.
func (m *Metrics) IncTrigger(t Trigger) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.triggers[t]++
	m.mu.Unlock()
}

// IncBackpressure increments the counter of effects dropped because the effect queue was full.
func (m *Metrics) IncBackpressure() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.backpressure++
	m.mu.Unlock()
}

// IncPanics increments the counter of recovered panics.
func (m *Metrics) IncPanics() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.panics++
	m.mu.Unlock()
}

// AddSwept adds to the counter of records removed by sweeps.
func (m *Metrics) AddSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mu.Lock()
	m.swept += uint64(n)
	m.mu.Unlock()
}

// SetQueueSize stores the current effect queue size gauge.
func (m *Metrics) SetQueueSize(size int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.queue = size
	m.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Allowed:      m.allowed,
		Denied:       maps.Clone(m.denied),
		Triggers:     maps.Clone(m.triggers),
		Backpressure: m.backpressure,
		Panics:       m.panics,
		Swept:        m.swept,
		QueueSize:    m.queue,
	}
}
