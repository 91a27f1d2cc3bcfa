package logger

const (
	Debug   = "debug"
	Info    = "info"
	Warning = "warning"
	Error   = "error"
)

// Config controls the logger construction.
type Config struct {
	// Level is the minimum level emitted: "debug", "info", "warning" or
	// "error". Anything else falls back to info.
	Level string `yaml:"level" envconfig:"ZAP_LOGGER_LEVEL"`

	// ServiceName is attached to every entry as the "service" field.
	ServiceName string `yaml:"service_name" envconfig:"ZAP_LOGGER_SERVICE_NAME"`

	// EnableTracing makes the WithContext logging methods extract trace and
	// span IDs from the context and attach them to the entry.
	EnableTracing bool `yaml:"enable_tracing" envconfig:"ZAP_LOGGER_ENABLE_TRACING"`
}
