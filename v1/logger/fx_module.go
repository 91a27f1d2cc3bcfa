package logger

import (
	"context"

	"go.uber.org/fx"
)

// FXModule provides the logger to an fx application and flushes it on
// shutdown. Requires a logger.Config in the container.
var FXModule = fx.Module("logger",
	fx.Provide(
		NewLoggerClient,
	),
	fx.Invoke(RegisterLoggerLifecycle),
)

// RegisterLoggerLifecycle syncs the underlying zap logger when the
// application stops so buffered entries are not lost.
func RegisterLoggerLifecycle(lc fx.Lifecycle, client *Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Zap.Sync()
		},
	})
}
