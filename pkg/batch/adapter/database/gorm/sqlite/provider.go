// Package sqlite registers the SQLite dialect with the GORM adapter.
package sqlite

import (
	"errors"

	"go.uber.org/fx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

func init() {
	gormadapter.RegisterDialector(dbconfig.TypeSQLite, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(cfg.Database), nil
	})
}

// NewProvider creates the SQLite DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, dbconfig.TypeSQLite)
}

// Module contributes the SQLite provider to the GORM resolver.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.ResultTags(gormadapter.DBProviderGroup),
	),
)
