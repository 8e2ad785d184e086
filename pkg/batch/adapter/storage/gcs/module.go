package gcs

import (
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	coreConfig "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

// NewProvider is the Fx constructor of the GCS provider.
func NewProvider(cfg *coreConfig.Config) storageAdapter.StorageProvider {
	return NewGCSProvider(cfg.Chunkbatch.StorageConfigs)
}

// Module contributes the GCS provider to the storage resolver.
var Module = fx.Provide(fx.Annotate(
	NewProvider,
	fx.ResultTags(storageAdapter.StorageProviderGroup),
))
