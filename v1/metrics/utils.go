package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/polystore/polystore/v1/adapter"
	"github.com/polystore/polystore/v1/cache"
)

// ObserveOperation records one storage operation's duration, and its failure
// when err is non-nil.
// Example: defer m.ObserveOperation(time.Now(), "postgres", "query", "users", err)
func (m *Metrics) ObserveOperation(start time.Time, backend, kind, target string, err error) {
	m.operationDuration.WithLabelValues(backend, kind, target).Observe(time.Since(start).Seconds())
	if err != nil {
		m.operationErrors.WithLabelValues(backend, kind).Inc()
	}
}

// SetPoolStatus publishes a pool snapshot as gauges. Call it periodically or
// after notable lifecycle events.
func (m *Metrics) SetPoolStatus(backend string, status adapter.PoolStatus) {
	m.poolConnections.WithLabelValues(backend, "total").Set(float64(status.Total))
	m.poolConnections.WithLabelValues(backend, "active").Set(float64(status.Active))
	m.poolConnections.WithLabelValues(backend, "idle").Set(float64(status.Idle))
	m.poolConnections.WithLabelValues(backend, "waiting").Set(float64(status.Waiting))
}

// SetCacheStatus publishes a cache counter snapshot. The source counters are
// cumulative, so the last snapshot is remembered and only the delta is added;
// feed every snapshot through the same Metrics instance.
func (m *Metrics) SetCacheStatus(status cache.Status) {
	m.cacheEntries.Set(float64(status.Entries))

	m.cacheMu.Lock()
	last := m.cacheLast
	m.cacheLast = status
	m.cacheMu.Unlock()

	addCounterDelta(m.cacheOperations.WithLabelValues("hit"), last.Hits, status.Hits)
	addCounterDelta(m.cacheOperations.WithLabelValues("miss"), last.Misses, status.Misses)
	addCounterDelta(m.cacheOperations.WithLabelValues("eviction"), last.Evictions, status.Evictions)
}

func addCounterDelta(c prometheus.Counter, prev, next uint64) {
	if next > prev {
		c.Add(float64(next - prev))
	}
}

// IncrementCacheResult counts one cache lookup outcome ("hit" or "miss")
// directly, for callers wired into the lookup path instead of polling
// Status.
func (m *Metrics) IncrementCacheResult(result string) {
	m.cacheOperations.WithLabelValues(result).Inc()
}

// CreateCounter creates a new CounterVec metric and registers it.
func (m *Metrics) CreateCounter(name, help string, labels []string) *prometheus.CounterVec {
	counter := createCounterVec(name, help, labels)
	m.Registry.MustRegister(counter)
	return counter
}

// CreateHistogram creates a new HistogramVec metric and registers it.
func (m *Metrics) CreateHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	hist := createHistogramVec(name, help, labels, buckets)
	m.Registry.MustRegister(hist)
	return hist
}

// CreateGauge creates a new GaugeVec metric and registers it.
func (m *Metrics) CreateGauge(name, help string, labels []string) *prometheus.GaugeVec {
	gauge := createGaugeVec(name, help, labels)
	m.Registry.MustRegister(gauge)
	return gauge
}

func createCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name,
			Help: help,
		},
		labels,
	)
}

func createHistogramVec(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name,
			Help:    help,
			Buckets: buckets,
		},
		labels,
	)
}

func createGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		labels,
	)
}
