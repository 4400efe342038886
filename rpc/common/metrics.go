package common

import (
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"io"
	"sync"
	"time"
)

// ServerMetrics collects connection level metrics of the reverse server.
// Every server owns its own metrics set, so several servers (e.g. in tests)
// do not share counters.
type ServerMetrics struct {
	set      *metrics.Set
	accepted *metrics.Counter
	statuses map[Status]*metrics.Counter
	duration *metrics.Histogram

	gaugesOnce sync.Once
}

// NewServerMetrics creates the metrics set and registers all counters
func NewServerMetrics() *ServerMetrics {
	set := metrics.NewSet()

	m := &ServerMetrics{
		set:      set,
		accepted: set.NewCounter("revd_connections_accepted_total"),
		statuses: make(map[Status]*metrics.Counter, len(AllStatuses)),
		duration: set.NewHistogram("revd_connection_duration_seconds"),
	}
	for _, s := range AllStatuses {
		m.statuses[s] = set.NewCounter(fmt.Sprintf(`revd_connections_total{status=%q}`, s.String()))
	}
	return m
}

// RegisterGauges exposes the pool and registry state. Only the first call has an effect.
func (m *ServerMetrics) RegisterGauges(running, queued, open func() int) {
	m.gaugesOnce.Do(func() {
		m.set.NewGauge("revd_pool_running", func() float64 { return float64(running()) })
		m.set.NewGauge("revd_pool_queued", func() float64 { return float64(queued()) })
		m.set.NewGauge("revd_connections_open", func() float64 { return float64(open()) })
	})
}

// ConnectionAccepted counts an accepted connection
func (m *ServerMetrics) ConnectionAccepted() {
	m.accepted.Inc()
}

// ConnectionDone records the final status and the handling time of a connection
func (m *ServerMetrics) ConnectionDone(status Status, started time.Time) {
	if c, ok := m.statuses[status]; ok {
		c.Inc()
	}
	m.duration.Update(time.Since(started).Seconds())
}

// Accepted returns the number of accepted connections
func (m *ServerMetrics) Accepted() uint64 {
	return m.accepted.Get()
}

// StatusCount returns how many connections finished with the given status
func (m *ServerMetrics) StatusCount(status Status) uint64 {
	if c, ok := m.statuses[status]; ok {
		return c.Get()
	}
	return 0
}

// Handled returns the number of connections that finished with any status
func (m *ServerMetrics) Handled() uint64 {
	var total uint64
	for _, c := range m.statuses {
		total += c.Get()
	}
	return total
}

// WritePrometheus writes all metrics in Prometheus text format to w.
// Process metrics (cpu, memory, fds) are appended when withProcess is set.
func (m *ServerMetrics) WritePrometheus(w io.Writer, withProcess bool) {
	m.set.WritePrometheus(w)
	if withProcess {
		metrics.WriteProcessMetrics(w)
	}
}
