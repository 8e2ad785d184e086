// Package migration applies golang-migrate schema migrations from an embedded fs.FS to a
// named database connection.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// DefaultMigrationsTable tracks applied application migrations.
const DefaultMigrationsTable = "batch_app_migrations"

const (
	CommandUp   = "up"
	CommandDown = "down"
)

// Migrator runs the migrations found in one directory of an fs.FS.
type Migrator struct {
	fsys  fs.FS  // fsys holds the migration files, usually an embed.FS.
	dir   string // dir is the directory inside fsys.
	table string // table records the applied version.
}

// NewMigrator creates a Migrator. An empty table selects DefaultMigrationsTable.
func NewMigrator(fsys fs.FS, dir, table string) *Migrator {
	if table == "" {
		table = DefaultMigrationsTable
	}
	return &Migrator{fsys: fsys, dir: dir, table: table}
}

// Up applies every pending migration to the connection named connName.
func (m *Migrator) Up(ctx context.Context, provider database.DBProvider, connName string) error {
	return m.Run(ctx, provider, connName, CommandUp)
}

// Down rolls back every applied migration.
func (m *Migrator) Down(ctx context.Context, provider database.DBProvider, connName string) error {
	return m.Run(ctx, provider, connName, CommandDown)
}

// Run executes command ("up" or "down") against the connection connName of provider.
// The connection is re-established afterwards because golang-migrate closes it.
//
// Parameters:
//
//	ctx: Cancelling ctx stops the migration after the current file.
//	provider: The provider owning connName.
//	connName: The name of the database connection.
//	command: [CommandUp] or [CommandDown].
//
// Returns:
//
//	A ConfigurationError for an unknown command or database type, or the migration error.
//	[migrate.ErrNoChange] is not an error.
func (m *Migrator) Run(ctx context.Context, provider database.DBProvider, connName, command string) error {
	if command != CommandUp && command != CommandDown {
		return exception.NewConfigurationErrorf("migration", "unsupported migration command: '%s'", command)
	}
	conn, err := provider.GetConnection(connName)
	if err != nil {
		return fmt.Errorf("failed to get connection '%s' for migration: %w", connName, err)
	}
	dbType := conn.Type()
	logger.Infof("Executing migration '%s' on '%s' (type: %s, dir: %s, table: %s).", command, connName, dbType, m.dir, m.table)

	instance, err := m.newMigrate(conn)
	if err != nil {
		return err
	}
	// Closing the migrate instance closes the pooled *sql.DB, so the pool is reopened afterwards.
	defer func() {
		srcErr, dbErr := instance.Close()
		if srcErr != nil || dbErr != nil {
			logger.Debugf("Migration instance close for '%s': source=%v database=%v", connName, srcErr, dbErr)
		}
		if _, err := provider.ForceReconnect(connName); err != nil {
			logger.Warnf("Failed to reconnect '%s' after migration: %v", connName, err)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			instance.GracefulStop <- true
		case <-done:
		}
	}()

	if command == CommandUp {
		err = instance.Up()
	} else {
		err = instance.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if version, dirty, verErr := instance.Version(); verErr == nil {
			logger.Errorf("Migration '%s' on '%s' stopped at version %d (dirty: %t).", command, connName, version, dirty)
		}
		return fmt.Errorf("migration '%s' failed (DB: %s, dir: %s): %w", command, connName, m.dir, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("migration '%s' on '%s' interrupted: %w", command, connName, ctxErr)
	}
	logger.Infof("Migration '%s' on '%s' completed.", command, connName)
	return nil
}

func (m *Migrator) newMigrate(conn database.DBConnection) (*migrate.Migrate, error) {
	sqlDB, err := conn.GetSQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	source, err := iofs.New(m.fsys, m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations from '%s': %w", m.dir, err)
	}
	driver, err := m.databaseDriver(conn.Type(), sqlDB)
	if err != nil {
		return nil, err
	}
	instance, err := migrate.NewWithInstance("iofs", source, conn.Type(), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	instance.Log = migrateLogger{}
	return instance, nil
}

func (m *Migrator) databaseDriver(dbType string, sqlDB *sql.DB) (migratedb.Driver, error) {
	switch strings.ToLower(dbType) {
	case dbconfig.TypePostgres, dbconfig.TypeRedshift:
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: m.table})
	case dbconfig.TypeMySQL:
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: m.table})
	case dbconfig.TypeSQLite:
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: m.table})
	default:
		return nil, exception.NewConfigurationErrorf("migration", "unsupported database type for migration: %s", dbType)
	}
}

// migrateLogger routes golang-migrate progress to the batch logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	logger.Debugf("migrate: "+strings.TrimSuffix(format, "\n"), v...)
}

func (migrateLogger) Verbose() bool {
	return logger.GetLogLevel() <= logger.LevelDebug
}
