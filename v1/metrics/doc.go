// Package metrics exposes Prometheus metrics for the storage layer.
//
// Each service gets its own isolated registry served over a /metrics HTTP
// endpoint. The built-in instruments cover the storage domain: operation
// duration histograms and error counters per backend, pool occupancy gauges
// and cache hit/miss counters. A QueryObserver bridges adapter.QueryLogger
// into the histograms so attaching observability to an adapter is one call:
//
//	m := metrics.NewMetrics(metrics.Config{
//		Address:     ":9090",
//		ServiceName: "orders",
//	})
//	db.SetQueryLogger(metrics.NewQueryObserver(m))
//
// Dynamic factories (CreateCounter, CreateHistogram, CreateGauge) register
// application-specific instruments on the same registry.
//
// With fx, include FXModule and provide a metrics.Config; the module starts
// the HTTP server on application start and shuts it down gracefully.
package metrics
