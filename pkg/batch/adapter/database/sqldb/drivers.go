package sqldb

import (
	"strings"

	// database/sql drivers reachable through DatabaseConfig.DriverName.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/snowflakedb/gosnowflake"

	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
)

// BindStyle is the positional placeholder syntax a driver expects.
type BindStyle int

const (
	// BindQuestion is "?" (mysql, sqlite, snowflake).
	BindQuestion BindStyle = iota
	// BindDollar is "$1", "$2", ... (postgres, redshift).
	BindDollar
)

// BindStyleFor returns the placeholder syntax of the configured database type.
func BindStyleFor(dbType string) BindStyle {
	switch strings.ToLower(dbType) {
	case dbconfig.TypePostgres, dbconfig.TypeRedshift:
		return BindDollar
	default:
		return BindQuestion
	}
}
