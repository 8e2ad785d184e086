// Package mysql registers the MySQL dialect with the GORM adapter.
package mysql

import (
	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

func init() {
	gormadapter.RegisterDialector(dbconfig.TypeMySQL, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		dsn, err := cfg.DSN()
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	})
}

// NewProvider creates the MySQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, dbconfig.TypeMySQL)
}

// Module contributes the MySQL provider to the GORM resolver.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.ResultTags(gormadapter.DBProviderGroup),
	),
)
