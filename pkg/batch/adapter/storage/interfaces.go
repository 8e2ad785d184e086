// Package storage defines the common interfaces for the object storage adapters.
// The job reads its CSV source and writes parquet parts through them, whether the
// objects live on the local file system or in Google Cloud Storage.
package storage

import (
	"context"
	"io"

	storageConfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/config"
	coreAdapter "github.com/tigerroll/chunkbatch/pkg/batch/core/adapter"
)

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Upload uploads data to the specified bucket and object name.
	// 'data' is the stream of data to upload. 'contentType' is the MIME type of the data.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download downloads data from the specified bucket and object name.
	// It returns a ReadCloser which must be closed by the caller after use.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object under prefix, in lexical order.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject deletes the specified object from the bucket.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection represents a generic data storage connection.
type StorageConnection interface {
	coreAdapter.ResourceConnection
	StorageExecutor

	// Config returns the storage configuration associated with this adapter.
	Config() storageConfig.StorageConfig
}

// StorageProvider manages the acquisition and lifecycle of storage connections of one type.
type StorageProvider interface {
	// GetConnection retrieves a StorageConnection with the specified name.
	GetConnection(name string) (StorageConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the storage type handled by this provider (e.g., "local", "gcs").
	Type() string
}

// StorageConnectionResolver resolves named storage connections.
type StorageConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	// ResolveStorageConnection resolves a StorageConnection instance by name.
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}

// StorageProviderGroup collects the storage providers.
const StorageProviderGroup = `group:"storage_providers"`
