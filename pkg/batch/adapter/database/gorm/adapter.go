// Package gorm adapts GORM to the database connection and transaction contracts.
// Dialects register themselves from the mysql, postgres and sqlite subpackages.
package gorm

import (
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// GormDBAdapter implements database.DBConnection on top of a *gorm.DB.
type GormDBAdapter struct {
	db   *gorm.DB
	cfg  dbconfig.DatabaseConfig
	name string
}

// NewGormDBAdapter creates a new GormDBAdapter.
func NewGormDBAdapter(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) *GormDBAdapter {
	return &GormDBAdapter{db: db, cfg: cfg, name: name}
}

// GetGormDB returns the underlying GORM handle.
func (a *GormDBAdapter) GetGormDB() *gorm.DB {
	return a.db
}

// Close closes the pooled connections.
func (a *GormDBAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get *sql.DB for '%s': %w", a.name, err)
	}
	logger.Debugf("Closing GORM connection '%s'.", a.name)
	return sqlDB.Close()
}

func (a *GormDBAdapter) Type() string { return a.cfg.Type }

func (a *GormDBAdapter) Name() string { return a.name }

// Config returns the settings the connection was opened with.
func (a *GormDBAdapter) Config() dbconfig.DatabaseConfig { return a.cfg }

// GetSQLDB returns the pool behind the GORM handle.
func (a *GormDBAdapter) GetSQLDB() (*sql.DB, error) {
	return a.db.DB()
}

func (a *GormDBAdapter) IsTableNotExistError(err error) bool {
	return database.IsTableNotExistError(err)
}

var _ database.DBConnection = (*GormDBAdapter)(nil)
