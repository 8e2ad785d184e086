package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts and provides *LoggingConfig from *Config.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Chunkbatch.System.Logging
}

// NewBatchConfigProvider extracts and provides *BatchConfig from *Config.
func NewBatchConfigProvider(cfg *Config) *BatchConfig {
	return &cfg.Chunkbatch.Batch
}

// NewMetricsConfigProvider extracts and provides *MetricsConfig from *Config.
func NewMetricsConfigProvider(cfg *Config) *MetricsConfig {
	return &cfg.Chunkbatch.Metrics
}

// Module provides *Config and its sections. The application supplies EmbeddedConfig.
var Module = fx.Options(
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
	fx.Provide(NewConfigProvider),
	fx.Provide(NewLoggingConfigProvider),
	fx.Provide(NewBatchConfigProvider),
	fx.Provide(NewMetricsConfigProvider),
)
