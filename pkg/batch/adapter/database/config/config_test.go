package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("mysql", func(t *testing.T) {
		dsn, err := dbconfig.DatabaseConfig{Type: "mysql", Host: "db", User: "batch", Password: "secret", Database: "app"}.DSN()
		require.NoError(t, err)
		assert.Contains(t, dsn, "batch:secret@tcp(db:3306)/app")
		assert.Contains(t, dsn, "parseTime=true")
	})

	t.Run("postgres with schema", func(t *testing.T) {
		dsn, err := dbconfig.DatabaseConfig{Type: "postgres", Host: "pg", Port: 6432, User: "u", Password: "p", Database: "app", Schema: "batch"}.DSN()
		require.NoError(t, err)
		assert.Equal(t, "host=pg port=6432 user=u password=p dbname=app sslmode=disable search_path=batch", dsn)
	})

	t.Run("redshift default port", func(t *testing.T) {
		dsn, err := dbconfig.DatabaseConfig{Type: "redshift", Host: "rs", User: "u", Password: "p", Database: "dw", Sslmode: "require"}.DSN()
		require.NoError(t, err)
		assert.Equal(t, "host=rs port=5439 user=u password=p dbname=dw sslmode=require", dsn)
	})

	t.Run("sqlite", func(t *testing.T) {
		dsn, err := dbconfig.DatabaseConfig{Type: "sqlite", Database: "/tmp/app.db"}.DSN()
		require.NoError(t, err)
		assert.Equal(t, "/tmp/app.db", dsn)

		_, err = dbconfig.DatabaseConfig{Type: "sqlite"}.DSN()
		assert.Error(t, err)
	})

	t.Run("snowflake", func(t *testing.T) {
		dsn, err := dbconfig.DatabaseConfig{
			Type: "snowflake", Account: "acme", User: "loader", Password: "pw",
			Database: "RAW", Schema: "PUBLIC", Warehouse: "LOAD_WH",
		}.DSN()
		require.NoError(t, err)
		assert.Contains(t, dsn, "loader")
		assert.Contains(t, dsn, "acme")
		assert.Contains(t, dsn, "RAW")
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := dbconfig.DatabaseConfig{Type: "oracle"}.DSN()
		assert.Error(t, err)
	})
}

func TestDatabaseConfig_DriverName(t *testing.T) {
	cases := map[string]string{
		"mysql":     "mysql",
		"postgres":  "postgres",
		"redshift":  "postgres",
		"SQLite":    "sqlite3",
		"snowflake": "snowflake",
	}
	for typ, want := range cases {
		got, err := dbconfig.DatabaseConfig{Type: typ}.DriverName()
		require.NoError(t, err, typ)
		assert.Equal(t, want, got, typ)
	}
	_, err := dbconfig.DatabaseConfig{Type: "mongo"}.DriverName()
	assert.Error(t, err)
}

func TestPoolConfig_ConnMaxLifetime(t *testing.T) {
	assert.Equal(t, 30*time.Minute, dbconfig.PoolConfig{ConnMaxLifetimeMinutes: 30}.ConnMaxLifetime())
}
