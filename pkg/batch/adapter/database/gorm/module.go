package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

// DBProviderGroup collects the GORM dialect providers.
const DBProviderGroup = `group:"gorm_db_providers"`

// GormDBConnectionResolver resolves connections among the registered GORM dialect providers.
type GormDBConnectionResolver struct {
	*database.ConnectionResolver
}

// ResolverParams defines the dependencies for NewGormDBConnectionResolver.
type ResolverParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Providers []database.DBProvider `group:"gorm_db_providers"`
}

// NewGormDBConnectionResolver builds the resolver and closes every connection on stop.
func NewGormDBConnectionResolver(p ResolverParams) *GormDBConnectionResolver {
	r := &GormDBConnectionResolver{
		ConnectionResolver: database.NewConnectionResolver(p.Providers, p.Config.Chunkbatch.AdaptorConfigs),
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return r.CloseAll()
		},
	})
	return r
}

// Module provides the GORM connection resolver. Dialect modules (mysql, postgres, sqlite)
// contribute the providers.
var Module = fx.Options(
	fx.Provide(NewGormDBConnectionResolver),
)
