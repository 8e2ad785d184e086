// Package reader provides the record sources of a chunk step.
package reader

import (
	"context"
	"io"
	"os"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
)

// Opener opens the raw input of a reader. It is called once per run, from Open.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// StorageOpener downloads objectName from the named storage connection.
// An empty bucket selects the connection's configured bucket.
func StorageOpener(resolver storage.StorageConnectionResolver, connectionName, bucket, objectName string) Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		conn, err := resolver.ResolveStorageConnection(ctx, connectionName)
		if err != nil {
			return nil, err
		}
		return conn.Download(ctx, bucket, objectName)
	}
}

// FileOpener opens a file on the local file system.
func FileOpener(path string) Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return os.Open(path)
	}
}
