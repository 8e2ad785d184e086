package local

import (
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	coreConfig "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

// NewProvider is the Fx constructor of the local provider.
func NewProvider(cfg *coreConfig.Config) storageAdapter.StorageProvider {
	return NewLocalProvider(cfg.Chunkbatch.StorageConfigs)
}

// Module contributes the local provider to the storage resolver.
var Module = fx.Provide(fx.Annotate(
	NewProvider,
	fx.ResultTags(storageAdapter.StorageProviderGroup),
))
