package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polystore/polystore/v1/cache"
)

// Metrics holds the Prometheus registry, the HTTP server exposing it and the
// built-in storage instruments.
type Metrics struct {
	// Server serves the /metrics endpoint.
	Server *http.Server

	// Registry is the service's isolated Prometheus registry. Each service
	// keeps its own to prevent metric name collisions in shared processes.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec
	poolConnections   *prometheus.GaugeVec
	cacheOperations   *prometheus.CounterVec
	cacheEntries      prometheus.Gauge

	cacheMu   sync.Mutex
	cacheLast cache.Status
}

// NewMetrics builds an isolated registry, registers the storage instruments
// under a constant service label and prepares the HTTP server. The server is
// not started here; that is the lifecycle hook's job.
func NewMetrics(cfg Config) *Metrics {
	registry := prometheus.NewRegistry()

	wrappedRegistry := prometheus.WrapRegistererWith(
		prometheus.Labels{"service": cfg.ServiceName},
		registry,
	)

	m := &Metrics{
		Registry: registry,
	}

	m.operationDuration = createHistogramVec(
		"storage_operation_duration_seconds",
		"Duration of storage operations in seconds",
		[]string{"backend", "kind", "target"},
		prometheus.DefBuckets,
	)
	m.operationErrors = createCounterVec(
		"storage_operation_errors_total",
		"Total number of failed storage operations",
		[]string{"backend", "kind"},
	)
	m.poolConnections = createGaugeVec(
		"storage_pool_connections",
		"Connection pool occupancy by state",
		[]string{"backend", "state"},
	)
	m.cacheOperations = createCounterVec(
		"cache_operations_total",
		"Result cache lookups by outcome",
		[]string{"result"},
	)
	m.cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_entries",
		Help: "Entries currently held by the result cache",
	})

	wrappedRegistry.MustRegister(
		m.operationDuration,
		m.operationErrors,
		m.poolConnections,
		m.cacheOperations,
		m.cacheEntries,
	)

	if cfg.EnableDefaultCollectors {
		wrappedRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewBuildInfoCollector(),
		)
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	m.Server = &http.Server{
		Addr:    cfg.Address,
		Handler: handler,
	}
	return m
}
