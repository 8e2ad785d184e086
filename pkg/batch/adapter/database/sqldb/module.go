package sqldb

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

// SQLDBConnectionResolver resolves database/sql connections of every supported type.
type SQLDBConnectionResolver struct {
	*database.ConnectionResolver
}

// NewSQLDBConnectionResolver builds the resolver and closes every pool on stop.
func NewSQLDBConnectionResolver(lc fx.Lifecycle, cfg *config.Config) *SQLDBConnectionResolver {
	section := cfg.Chunkbatch.AdaptorConfigs
	r := &SQLDBConnectionResolver{
		ConnectionResolver: database.NewConnectionResolver(NewProviders(section), section),
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return r.CloseAll()
		},
	})
	return r
}

// Module provides the database/sql connection resolver.
var Module = fx.Options(
	fx.Provide(NewSQLDBConnectionResolver),
)
