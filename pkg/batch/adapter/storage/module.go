package storage

import (
	"context"

	"go.uber.org/fx"

	coreConfig "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

// ResolverParams defines the dependencies for NewStorageConnectionResolver.
type ResolverParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *coreConfig.Config
	Providers []StorageProvider `group:"storage_providers"`
}

// NewStorageConnectionResolver builds a resolver over the "storage" section and closes
// every connection on stop.
func NewStorageConnectionResolver(p ResolverParams) *ConnectionResolver {
	r := NewConnectionResolver(p.Providers, p.Config.Chunkbatch.StorageConfigs)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return r.CloseAll()
		},
	})
	return r
}

// Module provides the StorageConnectionResolver. The local and gcs modules contribute providers.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewStorageConnectionResolver,
		fx.As(new(StorageConnectionResolver)),
	)),
)
