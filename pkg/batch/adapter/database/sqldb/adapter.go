// Package sqldb adapts database/sql to the database connection and transaction contracts.
// It serves the mysql, postgres, redshift, sqlite and snowflake drivers.
package sqldb

import (
	"database/sql"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// SQLDBAdapter implements database.DBConnection on top of a *sql.DB pool.
type SQLDBAdapter struct {
	db   *sql.DB
	cfg  dbconfig.DatabaseConfig
	name string
}

// NewSQLDBAdapter wraps an open pool.
func NewSQLDBAdapter(db *sql.DB, cfg dbconfig.DatabaseConfig, name string) *SQLDBAdapter {
	return &SQLDBAdapter{db: db, cfg: cfg, name: name}
}

func (a *SQLDBAdapter) Close() error {
	logger.Debugf("Closing database/sql connection '%s'.", a.name)
	return a.db.Close()
}

func (a *SQLDBAdapter) Type() string { return a.cfg.Type }

func (a *SQLDBAdapter) Name() string { return a.name }

func (a *SQLDBAdapter) Config() dbconfig.DatabaseConfig { return a.cfg }

func (a *SQLDBAdapter) GetSQLDB() (*sql.DB, error) { return a.db, nil }

func (a *SQLDBAdapter) IsTableNotExistError(err error) bool {
	return database.IsTableNotExistError(err)
}

var _ database.DBConnection = (*SQLDBAdapter)(nil)
