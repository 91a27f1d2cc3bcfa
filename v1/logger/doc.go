// Package logger provides the structured logging used across polystore.
//
// It wraps Uber's zap with a small surface: leveled methods taking a
// message, an optional error and optional field maps, WithContext variants
// that enrich entries with OpenTelemetry trace and span IDs, and a
// QueryLogger bridging storage adapters into the same output.
//
// Direct usage:
//
//	log := logger.NewLoggerClient(logger.Config{
//		Level:       logger.Info,
//		ServiceName: "orders",
//	})
//	log.Info("listener started", nil, map[string]interface{}{
//		"addr": ":8080",
//	})
//
// With fx, include FXModule and depend on *logger.Logger; the module flushes
// buffered entries on shutdown.
package logger
