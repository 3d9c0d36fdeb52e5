package eventbus

import (
	"sync"
	"time"
)

// Stats summarises deliveries of one event name.
type Stats struct {
	Count      int
	TotalTime  time.Duration
	AvgTime    time.Duration
	MaxTime    time.Duration
	ErrorCount int
}

type metricsTable struct {
	mu    sync.Mutex
	stats map[string]*Stats
}

func newMetricsTable() *metricsTable {
	return &metricsTable{stats: make(map[string]*Stats)}
}

// record adds one delivery of event that took d and saw failures handler faults.
func (m *metricsTable) record(event string, d time.Duration, failures int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[event]
	if !ok {
		s = &Stats{}
		m.stats[event] = s
	}
	s.Count++
	s.TotalTime += d
	s.AvgTime = s.TotalTime / time.Duration(s.Count)
	if d > s.MaxTime {
		s.MaxTime = d
	}
	s.ErrorCount += failures
}

func (m *metricsTable) snapshot() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Stats, len(m.stats))
	for k, v := range m.stats {
		out[k] = *v
	}
	return out
}

func (m *metricsTable) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = make(map[string]*Stats)
}
