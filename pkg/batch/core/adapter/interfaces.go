// Package adapter holds the contracts shared by every external resource adapter.
package adapter

import (
	"context"
)

// ResourceConnection represents a generic connection to any resource (e.g., database, storage).
type ResourceConnection interface {
	// Close closes the resource connection.
	Close() error
	// Type returns the type of the resource (e.g., "mysql", "gcs").
	Type() string
	// Name returns the connection name as configured (e.g., "app", "input").
	Name() string
}

// ResourceConnectionResolver resolves a named resource connection.
type ResourceConnectionResolver interface {
	// ResolveConnection returns a usable connection for name, re-establishing it if necessary.
	ResolveConnection(ctx context.Context, name string) (ResourceConnection, error)
}
