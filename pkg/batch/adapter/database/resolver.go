package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/chunkbatch/pkg/batch/core/adapter"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ConnectionResolver picks the provider registered for a connection's configured type and
// hands out connections that answer a ping.
type ConnectionResolver struct {
	providers map[string]DBProvider
	configs   map[string]interface{}
}

// NewConnectionResolver indexes providers by Type. configs is the "database" section of the
// application configuration.
func NewConnectionResolver(providers []DBProvider, configs map[string]interface{}) *ConnectionResolver {
	byType := make(map[string]DBProvider, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		byType[p.Type()] = p
	}
	return &ConnectionResolver{providers: byType, configs: configs}
}

// ConnectionConfig binds the named entry of the database section.
func ConnectionConfig(configs map[string]interface{}, name string) (dbconfig.DatabaseConfig, error) {
	var cfg dbconfig.DatabaseConfig
	if err := configbinder.BindSection(configs, name, &cfg); err != nil {
		return cfg, fmt.Errorf("database connection '%s': %w", name, err)
	}
	return cfg, nil
}

// ResolveDBConnection implements DBConnectionResolver.
func (r *ConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (DBConnection, error) {
	cfg, err := ConnectionConfig(r.configs, name)
	if err != nil {
		return nil, err
	}
	dbType := strings.ToLower(cfg.Type)
	if dbType == dbconfig.TypeRedshift {
		dbType = dbconfig.TypePostgres
	}
	provider, ok := r.providers[dbType]
	if !ok {
		return nil, fmt.Errorf("no database provider registered for type '%s' (connection '%s')", cfg.Type, name)
	}

	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection '%s': %w", name, err)
	}
	sqlDB, err := conn.GetSQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying *sql.DB for '%s': %w", name, err)
	}
	if pingErr := sqlDB.PingContext(ctx); pingErr != nil {
		logger.Warnf("Database connection '%s' failed ping (%v); reconnecting.", name, pingErr)
		conn, err = provider.ForceReconnect(name)
		if err != nil {
			return nil, fmt.Errorf("failed to reconnect database connection '%s': %w", name, err)
		}
	}
	return conn, nil
}

// ResolveConnection implements coreAdapter.ResourceConnectionResolver.
func (r *ConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	return r.ResolveDBConnection(ctx, name)
}

// CloseAll closes the connections of every provider.
func (r *ConnectionResolver) CloseAll() error {
	var result *multierror.Error
	for typ, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			result = multierror.Append(result, fmt.Errorf("provider '%s': %w", typ, err))
		}
	}
	return result.ErrorOrNil()
}

// IsTableNotExistError reports whether err is a missing-table error of one of the supported drivers.
func IsTableNotExistError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") || // sqlite
		strings.Contains(msg, "error 1146") || // mysql
		(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")) || // postgres
		strings.Contains(msg, "does not exist or not authorized") // snowflake
}

var _ DBConnectionResolver = (*ConnectionResolver)(nil)
