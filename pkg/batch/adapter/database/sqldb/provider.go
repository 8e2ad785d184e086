package sqldb

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Provider opens database/sql pools for one database type and caches them by name.
type Provider struct {
	configs     map[string]interface{}
	dbType      string
	connections map[string]*SQLDBAdapter
	mu          sync.RWMutex
}

// NewProvider creates a Provider for dbType over the "database" configuration section.
func NewProvider(configs map[string]interface{}, dbType string) *Provider {
	return &Provider{
		configs:     configs,
		dbType:      dbType,
		connections: make(map[string]*SQLDBAdapter),
	}
}

// NewProviders creates one Provider per supported database type.
func NewProviders(configs map[string]interface{}) []database.DBProvider {
	return []database.DBProvider{
		NewProvider(configs, dbconfig.TypeMySQL),
		NewProvider(configs, dbconfig.TypePostgres),
		NewProvider(configs, dbconfig.TypeSQLite),
		NewProvider(configs, dbconfig.TypeSnowflake),
	}
}

func (p *Provider) Type() string { return p.dbType }

// GetConnection returns the cached pool for name, opening it on first use.
func (p *Provider) GetConnection(name string) (database.DBConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}
	return p.open(name)
}

// ForceReconnect replaces the cached pool for name.
func (p *Provider) ForceReconnect(name string) (database.DBConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.connections[name]; ok {
		if err := conn.Close(); err != nil {
			logger.Warnf("Failed to close connection '%s' before reconnecting: %v", name, err)
		}
		delete(p.connections, name)
	}
	return p.open(name)
}

// open must be called with p.mu held.
func (p *Provider) open(name string) (*SQLDBAdapter, error) {
	cfg, err := database.ConnectionConfig(p.configs, name)
	if err != nil {
		return nil, err
	}
	driverName, err := cfg.DriverName()
	if err != nil {
		return nil, err
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, fmt.Errorf("database connection '%s': %w", name, err)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection '%s': %w", name, err)
	}
	if cfg.Pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	}
	if cfg.Pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	}
	if cfg.Pool.ConnMaxLifetimeMinutes > 0 {
		db.SetConnMaxLifetime(cfg.Pool.ConnMaxLifetime())
	}

	conn := NewSQLDBAdapter(db, cfg, name)
	p.connections[name] = conn
	logger.Infof("Opened %s connection '%s' (driver %s).", cfg.Type, name, driverName)
	return conn, nil
}

// CloseAll closes every pool opened by this provider.
func (p *Provider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var lastErr error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close connection '%s': %v", name, err)
			lastErr = err
		}
		delete(p.connections, name)
	}
	return lastErr
}

var _ database.DBProvider = (*Provider)(nil)
