// Package config holds the typed settings of one named storage connection.
package config

// Storage types accepted in storage.<name>.type.
const (
	TypeLocal = "local"
	TypeGCS   = "gcs"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // Type of storage ("local" or "gcs").
	BucketName      string `yaml:"bucket_name"`      // Default bucket name for operations.
	CredentialsFile string `yaml:"credentials_file"` // Path to credentials file (e.g., service account key for GCS).
	BaseDir         string `yaml:"base_dir"`         // Base directory for local file system operations.
}
