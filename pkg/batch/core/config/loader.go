package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"

	"go.uber.org/fx"
)

const moduleName = "config"

// Sink types accepted in job.sink.type.
const (
	SinkTypeSQL     = "sql"
	SinkTypeGorm    = "gorm"
	SinkTypeParquet = "parquet"
)

var validIsolationLevels = map[string]bool{
	"": true, "DEFAULT": true, "READ_UNCOMMITTED": true, "READ_COMMITTED": true,
	"REPEATABLE_READ": true, "SERIALIZABLE": true,
}

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig      // EmbeddedConfig contains the raw bytes of the configuration file.
	Expander       EnvironmentExpander `optional:"true"`
	EnvFilePath    string              `name:"envFilePath" optional:"true"` // EnvFilePath is the path to the .env file, if any.
}

// loadConfig builds the configuration in layers: defaults, the .env file, the embedded YAML
// with ${VAR} placeholders expanded, then CHUNKBATCH_* environment overrides.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}

	cfg := NewConfig()

	raw, err := expander.Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to expand environment placeholders", err)
	}
	// Decoding into the defaulted struct keeps every default the YAML does not mention.
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to unmarshal embedded config", err)
	}
	cfg.EmbeddedConfig = embeddedConfig

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to load config from environment variables", err)
	}
	return cfg, nil
}

// LoadConfig loads configuration from the embedded YAML, the .env file, and the environment,
// then validates it.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	cfg, err := loadConfig(envFilePath, embeddedConfig, nil)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewConfigProvider is an Fx provider that loads, validates and provides *Config.
// It also applies the configured log level.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig, params.Expander)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.Chunkbatch.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Chunkbatch.System.Logging.Level)
	return cfg, nil
}

// Validate reports the first invalid value as a ConfigurationError.
func (c *Config) Validate() error {
	b := c.Chunkbatch.Batch
	if b.ChunkSize < 1 {
		return exception.NewConfigurationErrorf(moduleName, "batch.chunk_size must be >= 1, got %d", b.ChunkSize)
	}
	if b.ItemSkip.SkipLimit < 0 {
		return exception.NewConfigurationErrorf(moduleName, "batch.item_skip.skip_limit must be >= 0, got %d", b.ItemSkip.SkipLimit)
	}
	if b.ItemRetry.MaxAttempts < 1 {
		return exception.NewConfigurationErrorf(moduleName, "batch.item_retry.max_attempts must be >= 1, got %d", b.ItemRetry.MaxAttempts)
	}
	if b.ItemRetry.InitialInterval < 0 {
		return exception.NewConfigurationErrorf(moduleName, "batch.item_retry.initial_interval must be >= 0, got %d", b.ItemRetry.InitialInterval)
	}
	if !validIsolationLevels[strings.ToUpper(strings.ReplaceAll(b.IsolationLevel, " ", "_"))] {
		return exception.NewConfigurationErrorf(moduleName, "batch.isolation_level '%s' is not supported", b.IsolationLevel)
	}
	if err := checkExceptionClasses(b.ItemSkip.SkippableExceptions, "item_skip"); err != nil {
		return err
	}
	if err := checkExceptionClasses(b.ItemRetry.RetryableExceptions, "item_retry"); err != nil {
		return err
	}

	sys := c.Chunkbatch.System
	if _, ok := logger.ParseLogLevel(sys.Logging.Level); !ok {
		return exception.NewConfigurationErrorf(moduleName, "system.logging.level '%s' is not a known level", sys.Logging.Level)
	}
	if _, err := time.LoadLocation(sys.Timezone); err != nil {
		return exception.NewConfigurationError(moduleName, fmt.Sprintf("system.timezone '%s' is invalid", sys.Timezone), err)
	}

	if otel := c.Chunkbatch.Metrics.Otel; otel.Enabled && otel.Protocol != "grpc" && otel.Protocol != "http" {
		return exception.NewConfigurationErrorf(moduleName, "metrics.otel.protocol must be 'grpc' or 'http', got '%s'", otel.Protocol)
	}

	job := c.Chunkbatch.Job
	if job.Name == "" {
		return nil
	}
	if job.Source.Path == "" {
		return exception.NewConfigurationErrorf(moduleName, "job '%s': source.path is required", job.Name)
	}
	switch job.Sink.Type {
	case SinkTypeSQL, SinkTypeGorm:
		if job.Sink.Database == "" {
			return exception.NewConfigurationErrorf(moduleName, "job '%s': sink.database is required for sink type '%s'", job.Name, job.Sink.Type)
		}
	case SinkTypeParquet:
		if job.Sink.Storage == "" {
			return exception.NewConfigurationErrorf(moduleName, "job '%s': sink.storage is required for sink type 'parquet'", job.Name)
		}
	default:
		return exception.NewConfigurationErrorf(moduleName, "job '%s': unknown sink type '%s'", job.Name, job.Sink.Type)
	}
	return nil
}

// checkExceptionClasses validates that all configured error type names are registered.
func checkExceptionClasses(classNames []string, configType string) error {
	for _, name := range classNames {
		if !exception.IsErrorTypeRegistered(name) {
			return exception.NewConfigurationErrorf(moduleName, "%s configuration references unknown exception class: '%s'", configType, name)
		}
	}
	return nil
}

// loadStructFromEnv recursively overrides struct fields from environment variables named
// after the upper-cased "yaml" tag path, e.g. CHUNKBATCH_BATCH_CHUNK_SIZE.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch {
		case field.Kind() == reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case field.Kind() == reflect.Map && field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.Interface:
			loadMapFromEnv(field, envVarName+"_")
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadMapFromEnv sets entries of a named-connection map from variables shaped
// PREFIX_<NAME>_<FIELD>. The name is the first segment; the rest, lower-cased, is the key
// (CHUNKBATCH_DATABASE_APP_PROJECT_ID sets database.app.project_id). Values stay strings;
// configbinder converts them when the section is bound.
func loadMapFromEnv(mapField reflect.Value, prefix string) {
	if mapField.IsNil() {
		mapField.Set(reflect.MakeMap(mapField.Type()))
	}
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		keyAndField, envValue, ok := strings.Cut(strings.TrimPrefix(env, prefix), "=")
		if !ok {
			continue
		}
		name, fieldName, ok := strings.Cut(keyAndField, "_")
		if !ok || name == "" || fieldName == "" {
			continue
		}
		name, fieldName = strings.ToLower(name), strings.ToLower(fieldName)

		var entry map[string]interface{}
		if mv := mapField.MapIndex(reflect.ValueOf(name)); mv.IsValid() {
			entry, _ = mv.Interface().(map[string]interface{})
		}
		if entry == nil {
			entry = make(map[string]interface{})
		}
		entry[fieldName] = envValue
		mapField.SetMapIndex(reflect.ValueOf(name), reflect.ValueOf(entry))
	}
}

// setField sets a string, integer, float, bool or string-slice field from its string form.
// Slices are comma-separated.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var parts []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		field.Set(reflect.ValueOf(parts))
	}
	return nil
}
