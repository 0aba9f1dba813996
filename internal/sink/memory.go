package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/vburojevic/tracesink/internal/config"
	"github.com/vburojevic/tracesink/internal/domain"
	"github.com/vburojevic/tracesink/internal/observe"
)

// approxEventBytes is the assumed in-memory footprint of one buffered
// event, used to turn bufferSizeMB into an entry capacity.
const approxEventBytes = 512

// Memory keeps the most recent events in a circular buffer for
// inspection or post-mortem draining.
type Memory struct {
	base
	notFileBacked

	buffer []domain.TraceEvent
	size   int
	head   int
	count  int
}

// NewMemory builds the in-memory destination. Capacity derives from the
// configured bufferSizeMB; an unset size falls back to one megabyte.
func NewMemory(cfg *config.Destination, log *zap.Logger, metrics *observe.Metrics) *Memory {
	mb := cfg.BufferSizeMB
	if mb <= 0 {
		mb = 1
	}
	size := mb * 1024 * 1024 / approxEventBytes
	return &Memory{
		base:   newBase(cfg, log, metrics),
		buffer: make([]domain.TraceEvent, size),
		size:   size,
	}
}

func (m *Memory) Write(event *domain.TraceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.accepts(event) {
		return nil
	}

	m.buffer[m.head] = *event
	m.head = (m.head + 1) % m.size
	if m.count < m.size {
		m.count++
	}
	m.metrics.EventWritten(context.Background(), m.cfg.Name)
	return nil
}

// Snapshot returns the buffered events in order, oldest first.
func (m *Memory) Snapshot() []domain.TraceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]domain.TraceEvent, m.count)
	if m.count < m.size {
		copy(result, m.buffer[:m.count])
	} else {
		copy(result, m.buffer[m.head:])
		copy(result[m.size-m.head:], m.buffer[:m.head])
	}
	return result
}

// Last returns the n most recent buffered events.
func (m *Memory) Last(n int) []domain.TraceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n > m.count {
		n = m.count
	}
	result := make([]domain.TraceEvent, n)
	start := (m.head - n + m.size) % m.size
	for i := 0; i < n; i++ {
		result[i] = m.buffer[(start+i)%m.size]
	}
	return result
}

// Count returns the number of buffered events.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// CountBySeverity returns buffered event counts grouped by severity.
func (m *Memory) CountBySeverity() map[domain.Severity]int {
	counts := make(map[domain.Severity]int)
	for _, e := range m.Snapshot() {
		counts[e.Severity]++
	}
	return counts
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.head = 0
	m.count = 0
	return nil
}
