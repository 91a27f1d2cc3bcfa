package metrics

import (
	"time"

	"github.com/polystore/polystore/v1/adapter"
)

// QueryObserver feeds adapter log entries into the storage instruments. It
// implements adapter.QueryLogger, so attaching it is one call:
//
//	db.SetQueryLogger(metrics.NewQueryObserver(m))
type QueryObserver struct {
	metrics *Metrics
}

// NewQueryObserver wraps m for attachment via adapter.SetQueryLogger.
func NewQueryObserver(m *Metrics) *QueryObserver {
	return &QueryObserver{metrics: m}
}

// Log implements adapter.QueryLogger.
func (o *QueryObserver) Log(entry adapter.LogEntry) {
	o.metrics.ObserveOperation(time.Now().Add(-entry.Duration), entry.Backend, entry.Kind, entry.Target, entry.Err)
}
