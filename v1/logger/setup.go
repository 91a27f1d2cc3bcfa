package logger

import (
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.Logger. The underlying instance is exported for the
// rare call site needing zap-specific functionality; everything else goes
// through the leveled methods.
type Logger struct {
	Zap *zap.Logger

	tracingEnabled bool
}

// NewLoggerClient builds a production logger: JSON encoding, ISO8601
// timestamps, caller information, service name and pid on every entry,
// output to stderr. Construction failure is fatal since nothing downstream
// can run without logging.
func NewLoggerClient(cfg Config) *Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderCfg.EncodeCaller = zapcore.FullCallerEncoder
	encoderCfg.EncodeDuration = zapcore.MillisDurationEncoder

	logLevel := zap.InfoLevel
	switch cfg.Level {
	case Debug:
		logLevel = zap.DebugLevel
	case Info:
		logLevel = zap.InfoLevel
	case Warning:
		logLevel = zap.WarnLevel
	case Error:
		logLevel = zap.ErrorLevel
	}

	config := zap.Config{
		Level:         zap.NewAtomicLevelAt(logLevel),
		Encoding:      "json",
		EncoderConfig: encoderCfg,
		OutputPaths:   []string{"stderr"},
		ErrorOutputPaths: []string{
			"stderr",
		},
		InitialFields: map[string]interface{}{
			"pid":     os.Getpid(),
			"service": cfg.ServiceName,
		},
	}

	zl, err := config.Build(zap.AddCaller(), zap.AddCallerSkip(1))
	if err != nil {
		log.Fatal(err)
	}

	return &Logger{
		Zap:            zl,
		tracingEnabled: cfg.EnableTracing,
	}
}

// NewNop returns a logger that discards everything, for tests and for
// components where logging is optional.
func NewNop() *Logger {
	return &Logger{Zap: zap.NewNop()}
}
