// Package postgres registers the PostgreSQL dialect with the GORM adapter.
// Redshift connections are served by the same provider.
package postgres

import (
	"go.uber.org/fx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

func init() {
	gormadapter.RegisterDialector(dbconfig.TypePostgres, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		dsn, err := cfg.DSN()
		if err != nil {
			return nil, err
		}
		return postgres.Open(dsn), nil
	})
}

// NewProvider creates the PostgreSQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, dbconfig.TypePostgres)
}

// Module contributes the PostgreSQL provider to the GORM resolver.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.ResultTags(gormadapter.DBProviderGroup),
	),
)
