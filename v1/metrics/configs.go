package metrics

// Config controls the metrics registry and HTTP server.
type Config struct {
	// Address is the listen address of the /metrics endpoint, e.g. ":9090".
	Address string `yaml:"address" envconfig:"METRICS_ADDRESS"`

	// ServiceName is attached to every metric as a constant "service" label.
	ServiceName string `yaml:"service_name" envconfig:"METRICS_SERVICE_NAME"`

	// EnableDefaultCollectors registers the Go runtime, process and build
	// info collectors.
	EnableDefaultCollectors bool `yaml:"enable_default_collectors" envconfig:"METRICS_ENABLE_DEFAULT_COLLECTORS"`
}
