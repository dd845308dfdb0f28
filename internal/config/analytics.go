package config

// AnalyticsConfig configures the fire-and-forget event emitter.
type AnalyticsConfig struct {
	// Enabled turns event emission on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// BufferSize is the event channel capacity. Events beyond it are
	// dropped. Defaults to 1024.
	BufferSize int `yaml:"bufferSize,omitempty" json:"bufferSize,omitempty"`

	// Sink configures event delivery.
	Sink *SinkConfig `yaml:"sink,omitempty" json:"sink,omitempty"`
}

// SinkConfig configures analytics event delivery.
type SinkConfig struct {
	// Type selects the sink: log (default) or http.
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Endpoint is the HTTP sink URL. Required when Type is http.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// Timeout bounds HTTP sink deliveries. Defaults to 5s.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Headers are sent with every HTTP sink delivery.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}
