// Package config holds the typed settings of one named database connection and
// knows how to turn them into a driver DSN.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/snowflakedb/gosnowflake"
)

// Database types accepted in database.<name>.type.
const (
	TypeMySQL     = "mysql"
	TypePostgres  = "postgres"
	TypeRedshift  = "redshift"
	TypeSQLite    = "sqlite"
	TypeSnowflake = "snowflake"
)

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type      string     `yaml:"type"`                // Database type (e.g., "postgres", "mysql", "sqlite").
	Host      string     `yaml:"host"`                // Database host address.
	Port      int        `yaml:"port"`                // Database port number.
	Database  string     `yaml:"database"`            // Database name, or the file path for sqlite.
	User      string     `yaml:"user"`                // Database user.
	Password  string     `yaml:"password"`            // Database password.
	Schema    string     `yaml:"schema,omitempty"`    // Schema name for PostgreSQL/Redshift/Snowflake.
	Sslmode   string     `yaml:"sslmode"`             // SSL mode for the connection.
	Account   string     `yaml:"account,omitempty"`   // Account identifier for Snowflake.
	Warehouse string     `yaml:"warehouse,omitempty"` // Warehouse for Snowflake.
	Role      string     `yaml:"role,omitempty"`      // Role for Snowflake.
	Pool      PoolConfig `yaml:"pool"`                // Connection pool settings.
}

// ConnMaxLifetime returns the pool lifetime as a duration.
func (c PoolConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// DriverName returns the database/sql driver registered for the configured type.
func (c DatabaseConfig) DriverName() (string, error) {
	switch strings.ToLower(c.Type) {
	case TypeMySQL:
		return "mysql", nil
	case TypePostgres, TypeRedshift:
		return "postgres", nil
	case TypeSQLite:
		return "sqlite3", nil
	case TypeSnowflake:
		return "snowflake", nil
	default:
		return "", fmt.Errorf("unsupported database type '%s'", c.Type)
	}
}

// DSN builds the data source name for the configured type.
func (c DatabaseConfig) DSN() (string, error) {
	switch strings.ToLower(c.Type) {
	case TypeMySQL:
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.portOr(3306)))
		mc.DBName = c.Database
		mc.ParseTime = true
		return mc.FormatDSN(), nil
	case TypePostgres, TypeRedshift:
		defaultPort := 5432
		if strings.EqualFold(c.Type, TypeRedshift) {
			defaultPort = 5439
		}
		sslmode := c.Sslmode
		if sslmode == "" {
			sslmode = "disable"
		}
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.portOr(defaultPort), c.User, c.Password, c.Database, sslmode)
		if c.Schema != "" {
			dsn += " search_path=" + c.Schema
		}
		return dsn, nil
	case TypeSQLite:
		if c.Database == "" {
			return "", fmt.Errorf("sqlite connection requires 'database' to hold the file path")
		}
		return c.Database, nil
	case TypeSnowflake:
		return gosnowflake.DSN(&gosnowflake.Config{
			Account:   c.Account,
			User:      c.User,
			Password:  c.Password,
			Database:  c.Database,
			Schema:    c.Schema,
			Warehouse: c.Warehouse,
			Role:      c.Role,
		})
	default:
		return "", fmt.Errorf("unsupported database type '%s'", c.Type)
	}
}

func (c DatabaseConfig) portOr(def int) int {
	if c.Port > 0 {
		return c.Port
	}
	return def
}
