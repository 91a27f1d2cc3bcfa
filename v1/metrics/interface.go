package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/polystore/polystore/v1/adapter"
	"github.com/polystore/polystore/v1/cache"
)

// MetricsCollector is the contract for publishing storage metrics. It is
// implemented by the concrete *Metrics type; components that only record
// should depend on this interface.
type MetricsCollector interface {
	// ObserveOperation records a storage operation's duration and failure.
	ObserveOperation(start time.Time, backend, kind, target string, err error)

	// SetPoolStatus publishes a pool snapshot as gauges.
	SetPoolStatus(backend string, status adapter.PoolStatus)

	// SetCacheStatus publishes a cache counter snapshot, emitting deltas.
	SetCacheStatus(status cache.Status)

	// IncrementCacheResult counts one cache lookup outcome directly.
	IncrementCacheResult(result string)

	// Dynamic metric factories for application-specific instruments.

	// CreateCounter creates a new CounterVec metric and registers it.
	CreateCounter(name, help string, labels []string) *prometheus.CounterVec

	// CreateHistogram creates a new HistogramVec metric and registers it.
	CreateHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec

	// CreateGauge creates a new GaugeVec metric and registers it.
	CreateGauge(name, help string, labels []string) *prometheus.GaugeVec
}
