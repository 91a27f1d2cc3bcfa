package logger

import (
	"github.com/polystore/polystore/v1/adapter"
)

// QueryLogger adapts a Logger to the adapter.QueryLogger contract. Clean
// operations log at debug, failed ones at warn, so production levels stay
// quiet until something goes wrong.
type QueryLogger struct {
	log *Logger
}

// NewQueryLogger wraps log for attachment via adapter.SetQueryLogger.
func NewQueryLogger(log *Logger) *QueryLogger {
	return &QueryLogger{log: log}
}

// Log implements adapter.QueryLogger.
func (q *QueryLogger) Log(entry adapter.LogEntry) {
	fields := map[string]interface{}{
		"kind":        entry.Kind,
		"backend":     entry.Backend,
		"target":      entry.Target,
		"duration_ms": entry.Duration.Milliseconds(),
	}
	if len(entry.Params) > 0 {
		fields["params"] = entry.Params
	}
	if entry.Err != nil {
		q.log.Warn("storage operation failed", entry.Err, fields)
		return
	}
	q.log.Debug("storage operation", nil, fields)
}
