package metrics

import (
	"context"
	"net/http"

	"go.uber.org/fx"

	"github.com/polystore/polystore/v1/logger"
)

// FXModule provides the metrics instance and manages the /metrics HTTP
// server's lifecycle. Requires a metrics.Config in the container; a
// *logger.Logger is used for startup and shutdown logs when present.
var FXModule = fx.Module("metrics",
	fx.Provide(NewMetrics),
	fx.Invoke(RegisterMetricsLifecycle),
)

// MetricsLifecycleParams groups the lifecycle dependencies.
type MetricsLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Metrics   *Metrics
	Log       *logger.Logger `optional:"true"`
}

// RegisterMetricsLifecycle starts the metrics server in the background on
// application start and shuts it down gracefully on stop.
func RegisterMetricsLifecycle(params MetricsLifecycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if params.Log != nil {
					params.Log.Info("starting metrics server", nil, map[string]interface{}{
						"address": params.Metrics.Server.Addr,
					})
				}
				if err := params.Metrics.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					if params.Log != nil {
						params.Log.Error("metrics server failed", err, nil)
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if params.Log != nil {
				params.Log.Info("shutting down metrics server", nil, nil)
			}
			return params.Metrics.Server.Shutdown(ctx)
		},
	})
}
