// Package database defines the connection contracts shared by the GORM and database/sql adapters.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/chunkbatch/pkg/batch/core/adapter"
)

// DBConnection is one named, pooled database handle.
type DBConnection interface {
	coreAdapter.ResourceConnection // Embeds Type(), Name(), Close()

	// IsTableNotExistError reports whether err is the driver's "no such table" error.
	IsTableNotExistError(err error) bool
	// Config returns the settings the connection was opened with.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB exposes the pool for migrations and raw statements.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves named database connections.
type DBConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	// The returned connection has answered a ping; a stale one is re-established first.
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider opens and caches connections for the database types it supports.
type DBProvider interface {
	// GetConnection opens the named connection on first use and caches it.
	GetConnection(name string) (DBConnection, error)
	// ForceReconnect closes the named connection, if open, and opens it again.
	ForceReconnect(name string) (DBConnection, error)
	// CloseAll closes every cached connection.
	CloseAll() error
	// Type is the database type served, e.g. "mysql".
	Type() string
}
