// Package config provides structures and utilities for managing application configuration.
package config

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// ItemRetryConfig holds processor-level retry configuration.
type ItemRetryConfig struct {
	MaxAttempts         int      `yaml:"max_attempts"`         // MaxAttempts is the total number of processor calls per record; 1 disables retry.
	InitialInterval     int      `yaml:"initial_interval"`     // InitialInterval is the backoff interval in milliseconds.
	Multiplier          float64  `yaml:"multiplier"`           // Multiplier > 1 grows the interval exponentially.
	RetryableExceptions []string `yaml:"retryable_exceptions"` // RetryableExceptions names registered error types that are retried.
}

// ItemSkipConfig holds item-level skip configuration.
type ItemSkipConfig struct {
	SkipLimit           int      `yaml:"skip_limit"`           // SkipLimit is the maximum number of per-record errors to skip; 0 is fail-fast.
	SkippableExceptions []string `yaml:"skippable_exceptions"` // SkippableExceptions restricts skipping to these registered error types.
}

// BatchConfig holds configuration specific to the chunk engine.
type BatchConfig struct {
	// ChunkSize is the number of records committed per transaction.
	ChunkSize int `yaml:"chunk_size"`
	// IsolationLevel is the isolation level of chunk transactions (e.g. "READ_COMMITTED").
	IsolationLevel string `yaml:"isolation_level"`
	// ItemRetry is the processor retry configuration.
	ItemRetry ItemRetryConfig `yaml:"item_retry"`
	// ItemSkip is the item-level skip configuration.
	ItemSkip ItemSkipConfig `yaml:"item_skip"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Tokyo").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// PrometheusConfig configures the Prometheus metric recorder.
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
	// PushGatewayURL, when set, receives the collected metrics once the launch finishes.
	PushGatewayURL string `yaml:"push_gateway_url"`
	// PushJobName is the Pushgateway job grouping label.
	PushJobName string `yaml:"push_job_name"`
}

// OtelConfig configures the OpenTelemetry tracer and metric recorder.
type OtelConfig struct {
	Enabled bool `yaml:"enabled"`
	// Protocol selects the OTLP exporter: "grpc" or "http".
	Protocol    string `yaml:"protocol"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// MetricsConfig holds the observability backends.
type MetricsConfig struct {
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Otel       OtelConfig       `yaml:"otel"`
	// AsyncBufferSize > 0 moves metric recording off the engine goroutine through a queue of this size.
	AsyncBufferSize int `yaml:"async_buffer_size"`
}

// SourceConfig locates the input file of a job.
type SourceConfig struct {
	// Storage is the name of the storage connection holding the file.
	Storage string `yaml:"storage"`
	// Path is the object path within the storage bucket or base directory.
	Path string `yaml:"path"`
}

// SinkConfig selects and locates the output of a job.
type SinkConfig struct {
	// Type is one of "sql", "gorm" or "parquet".
	Type string `yaml:"type"`
	// Database is the name of the database connection for "sql" and "gorm" sinks.
	Database string `yaml:"database"`
	// Table is the target table for "gorm" sinks.
	Table string `yaml:"table"`
	// Storage is the storage connection for "parquet" sinks.
	Storage string `yaml:"storage"`
	// Path is the object prefix for "parquet" sinks.
	Path string `yaml:"path"`
	// Compression is the parquet codec: "SNAPPY" (default), "GZIP" or "NONE".
	Compression string `yaml:"compression"`
}

// JobConfig describes the job run by the launcher binary.
type JobConfig struct {
	Name   string       `yaml:"name"`
	Source SourceConfig `yaml:"source"`
	Sink   SinkConfig   `yaml:"sink"`
	// Migrate applies the embedded schema migrations to the sink database before launching.
	Migrate bool `yaml:"migrate"`
}

// ChunkbatchConfig holds all configuration under the "chunkbatch" top-level key.
type ChunkbatchConfig struct {
	// Batch contains chunk engine configurations.
	Batch BatchConfig `yaml:"batch"`
	// System contains system-wide configurations.
	System SystemConfig `yaml:"system"`
	// Metrics contains observability configurations.
	Metrics MetricsConfig `yaml:"metrics"`
	// Job contains the job launched by the binary.
	Job JobConfig `yaml:"job"`
	// AdaptorConfigs holds the named database connections, bound later by the database adapters.
	AdaptorConfigs map[string]interface{} `yaml:"database"`
	// StorageConfigs holds the named storage connections, bound later by the storage adapters.
	StorageConfigs map[string]interface{} `yaml:"storage"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Chunkbatch ChunkbatchConfig `yaml:"chunkbatch"`
	// EmbeddedConfig holds the raw configuration, not read from YAML.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		Chunkbatch: ChunkbatchConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Batch: BatchConfig{
				ChunkSize: 10,
				ItemRetry: ItemRetryConfig{
					MaxAttempts:     1,
					InitialInterval: 1000,
				},
				ItemSkip: ItemSkipConfig{
					SkipLimit: 0,
				},
			},
			Metrics: MetricsConfig{
				Prometheus: PrometheusConfig{PushJobName: "chunkbatch"},
				Otel:       OtelConfig{Protocol: "grpc", ServiceName: "chunkbatch"},
			},
			AdaptorConfigs: map[string]interface{}{},
			StorageConfigs: map[string]interface{}{},
		},
	}
}
