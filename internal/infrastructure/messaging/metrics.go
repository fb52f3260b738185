package messaging

import (
	"sync"
	"time"

	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

// EventBusMetrics counts publishes and handler executions. Exposed through
// the diagnostics endpoint; not a replacement for external monitoring.
type EventBusMetrics struct {
	mu sync.RWMutex

	published map[shared.EventType]int64

	handlerExecs    int64
	handlerOK       int64
	handlerDuration time.Duration

	since time.Time
}

// NewEventBusMetrics creates an empty counter set.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{
		published: make(map[shared.EventType]int64),
		since:     time.Now(),
	}
}

// RecordPublish counts one published event.
func (m *EventBusMetrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[eventType]++
}

// RecordHandlerExecution counts one handler run.
func (m *EventBusMetrics) RecordHandlerExecution(eventType shared.EventType, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlerExecs++
	m.handlerDuration += duration
	if success {
		m.handlerOK++
	}
}

// EventBusMetricsSnapshot is a point-in-time copy of the counters.
type EventBusMetricsSnapshot struct {
	TotalPublished         int64
	TotalHandlerExecs      int64
	HandlerSuccessRate     float64
	AverageHandlerDuration time.Duration
	LastReset              time.Time
}

// Snapshot returns a consistent copy of the counters.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, n := range m.published {
		total += n
	}

	rate := 1.0
	if m.handlerExecs > 0 {
		rate = float64(m.handlerOK) / float64(m.handlerExecs)
	}

	var avg time.Duration
	if m.handlerExecs > 0 {
		avg = m.handlerDuration / time.Duration(m.handlerExecs)
	}

	return EventBusMetricsSnapshot{
		TotalPublished:         total,
		TotalHandlerExecs:      m.handlerExecs,
		HandlerSuccessRate:     rate,
		AverageHandlerDuration: avg,
		LastReset:              m.since,
	}
}

// Reset zeroes all counters.
func (m *EventBusMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.published = make(map[shared.EventType]int64)
	m.handlerExecs = 0
	m.handlerOK = 0
	m.handlerDuration = 0
	m.since = time.Now()
}
