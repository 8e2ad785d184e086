package app

import (
	"context"

	"github.com/tigerroll/chunkbatch/internal/employee"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/sqldb"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/migration"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// MigrateSink applies the employee schema to the sink database when job.migrate is set.
// It uses a dedicated pool that is closed before the job starts.
func MigrateSink(ctx context.Context, cfg *config.Config) error {
	jobCfg := cfg.Chunkbatch.Job
	if !jobCfg.Migrate {
		return nil
	}
	if jobCfg.Sink.Type != config.SinkTypeSQL && jobCfg.Sink.Type != config.SinkTypeGorm {
		logger.Debugf("job.migrate ignored for sink type '%s'.", jobCfg.Sink.Type)
		return nil
	}
	dbCfg, err := database.ConnectionConfig(cfg.Chunkbatch.AdaptorConfigs, jobCfg.Sink.Database)
	if err != nil {
		return err
	}
	provider := sqldb.NewProvider(cfg.Chunkbatch.AdaptorConfigs, dbCfg.Type)
	defer func() {
		if err := provider.CloseAll(); err != nil {
			logger.Warnf("Failed to close migration connections: %v", err)
		}
	}()
	return migration.NewMigrator(employee.Migrations, employee.MigrationsDir, "").Up(ctx, provider, jobCfg.Sink.Database)
}
