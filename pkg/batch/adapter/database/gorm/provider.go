package gorm

import (
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// DialectorFactory generates a gorm.Dialector from a dbconfig.DatabaseConfig.
type DialectorFactory func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorRegistry = make(map[string]DialectorFactory)
	dialectorMutex    sync.RWMutex
)

// RegisterDialector registers a DialectorFactory for the given database type.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMutex.Lock()
	defer dialectorMutex.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// GetDialectorFactory retrieves the DialectorFactory corresponding to the specified DB type.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s", dbType)
	}
	return factory, nil
}

// BaseProvider opens GORM connections for one database type and caches them by name.
// The dialect subpackages wrap it as their DBProvider.
type BaseProvider struct {
	configs     map[string]interface{}
	dbType      string
	connections map[string]*GormDBAdapter
	mu          sync.RWMutex
}

// NewBaseProvider creates a BaseProvider reading the "database" section of cfg.
func NewBaseProvider(cfg *config.Config, dbType string) *BaseProvider {
	return NewBaseProviderFromSection(cfg.Chunkbatch.AdaptorConfigs, dbType)
}

// NewBaseProviderFromSection creates a BaseProvider over an already extracted "database" section.
func NewBaseProviderFromSection(configs map[string]interface{}, dbType string) *BaseProvider {
	return &BaseProvider{
		configs:     configs,
		dbType:      dbType,
		connections: make(map[string]*GormDBAdapter),
	}
}

// Type returns the database type.
func (p *BaseProvider) Type() string {
	return p.dbType
}

// GetConnection retrieves an existing connection or establishes a new one.
func (p *BaseProvider) GetConnection(name string) (database.DBConnection, error) {
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
	return p.createAndStoreConnection(name)
}

// ForceReconnect closes the cached connection, if any, and opens a fresh one.
func (p *BaseProvider) ForceReconnect(name string) (database.DBConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.connections[name]; ok {
		if err := conn.Close(); err != nil {
			logger.Warnf("Failed to close GORM connection '%s' before reconnecting: %v", name, err)
		}
		delete(p.connections, name)
	}
	logger.Infof("Reconnecting GORM connection '%s'.", name)
	return p.createAndStoreConnection(name)
}

// createAndStoreConnection must be called with p.mu held.
func (p *BaseProvider) createAndStoreConnection(name string) (*GormDBAdapter, error) {
	dbCfg, err := database.ConnectionConfig(p.configs, name)
	if err != nil {
		return nil, err
	}
	db, err := p.connect(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database '%s': %w", name, err)
	}
	conn := NewGormDBAdapter(db, dbCfg, name)
	p.connections[name] = conn
	logger.Infof("Opened %s connection '%s'.", dbCfg.Type, name)
	return conn, nil
}

func (p *BaseProvider) connect(cfg dbconfig.DatabaseConfig) (*gorm.DB, error) {
	factory, err := GetDialectorFactory(p.dbType)
	if err != nil {
		return nil, err
	}
	dialector, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialector: %w", err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 NewGormLogger(logger.GetLogLevel()),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	}
	if cfg.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	}
	if cfg.Pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(cfg.Pool.ConnMaxLifetime())
	}
	return db, nil
}

// CloseAll closes every connection opened by this provider.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close GORM connection '%s': %v", name, err)
			lastErr = err
		}
		delete(p.connections, name)
	}
	return lastErr
}

var _ database.DBProvider = (*BaseProvider)(nil)
