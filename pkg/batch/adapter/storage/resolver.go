package storage

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	storageConfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/config"
	coreAdapter "github.com/tigerroll/chunkbatch/pkg/batch/core/adapter"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/configbinder"
)

// ConnectionConfig binds the named entry of the "storage" section.
func ConnectionConfig(section map[string]interface{}, name string) (storageConfig.StorageConfig, error) {
	var cfg storageConfig.StorageConfig
	if err := configbinder.BindSection(section, name, &cfg); err != nil {
		return cfg, fmt.Errorf("storage connection '%s': %w", name, err)
	}
	return cfg, nil
}

// ConnectionResolver dispatches to the provider registered for a connection's type.
type ConnectionResolver struct {
	providers map[string]StorageProvider
	section   map[string]interface{}
}

// NewConnectionResolver indexes providers by Type.
func NewConnectionResolver(providers []StorageProvider, section map[string]interface{}) *ConnectionResolver {
	byType := make(map[string]StorageProvider, len(providers))
	for _, p := range providers {
		if p != nil {
			byType[p.Type()] = p
		}
	}
	return &ConnectionResolver{providers: byType, section: section}
}

// ResolveStorageConnection implements StorageConnectionResolver.
func (r *ConnectionResolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	cfg, err := ConnectionConfig(r.section, name)
	if err != nil {
		return nil, err
	}
	provider, ok := r.providers[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider found for type '%s' (connection '%s')", cfg.Type, name)
	}
	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage connection '%s' from provider '%s': %w", name, cfg.Type, err)
	}
	return conn, nil
}

// ResolveConnection implements coreAdapter.ResourceConnectionResolver.
func (r *ConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	return r.ResolveStorageConnection(ctx, name)
}

// CloseAll closes the connections of every provider.
func (r *ConnectionResolver) CloseAll() error {
	var result *multierror.Error
	for typ, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			result = multierror.Append(result, fmt.Errorf("storage provider '%s': %w", typ, err))
		}
	}
	return result.ErrorOrNil()
}

var _ StorageConnectionResolver = (*ConnectionResolver)(nil)
