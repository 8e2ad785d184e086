// Package gcs provides a Google Cloud Storage implementation of the storage adapter interfaces.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	storageAdapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// gcsAdapter implements storage.StorageConnection over a GCS client.
type gcsAdapter struct {
	client *storage.Client
	cfg    storageConfig.StorageConfig
	name   string
}

var _ storageAdapter.StorageConnection = (*gcsAdapter)(nil)

// NewGCSAdapter creates a GCS client for cfg. Without a credentials file the client uses
// Application Default Credentials. Extra client options are appended after the credentials.
func NewGCSAdapter(ctx context.Context, cfg storageConfig.StorageConfig, name string, opts ...option.ClientOption) (storageAdapter.StorageConnection, error) {
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	clientOpts = append(clientOpts, opts...)

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage adapter '%s': failed to create client: %w", name, err)
	}
	return &gcsAdapter{client: client, cfg: cfg, name: name}, nil
}

func (a *gcsAdapter) Close() error {
	logger.Debugf("Closing GCS client '%s'.", a.name)
	return a.client.Close()
}

func (a *gcsAdapter) Type() string { return storageConfig.TypeGCS }

func (a *gcsAdapter) Name() string { return a.name }

func (a *gcsAdapter) Config() storageConfig.StorageConfig { return a.cfg }

// bucket resolves the bucket to use, falling back to bucket_name, and returns its handle
// together with the resolved name.
func (a *gcsAdapter) bucket(bucket string) (*storage.BucketHandle, string, error) {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	if bucket == "" {
		return nil, "", fmt.Errorf("gcs storage adapter '%s': no bucket given and bucket_name is not configured", a.name)
	}
	return a.client.Bucket(bucket), bucket, nil
}

// Upload streams data into the object. The object becomes visible only when the writer closes;
// a failed copy cancels the writer first, so no partial object is ever finalized.
func (a *gcsAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	bh, bucketName, err := a.bucket(bucket)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := bh.Object(objectName).NewWriter(writeCtx)
	w.ContentType = contentType
	if _, err := io.Copy(w, data); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("failed to upload gs://%s/%s: %w", bucketName, objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", bucketName, objectName, err)
	}
	logger.Debugf("Uploaded gs://%s/%s (gcs adapter '%s').", bucketName, objectName, a.name)
	return nil
}

// Download opens a reader on the object. The caller closes it.
func (a *gcsAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	bh, bucketName, err := a.bucket(bucket)
	if err != nil {
		return nil, err
	}
	r, err := bh.Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucketName, objectName, err)
	}
	return r, nil
}

// ListObjects iterates the objects under prefix.
func (a *gcsAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	bh, bucketName, err := a.bucket(bucket)
	if err != nil {
		return err
	}
	it := bh.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list gs://%s/%s: %w", bucketName, prefix, err)
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

// DeleteObject deletes the object. Deleting a missing object is not an error.
func (a *gcsAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	bh, bucketName, err := a.bucket(bucket)
	if err != nil {
		return err
	}
	if err := bh.Object(objectName).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete gs://%s/%s: %w", bucketName, objectName, err)
	}
	return nil
}

// GCSProvider implements storage.StorageProvider for GCS connections.
type GCSProvider struct {
	section     map[string]interface{}
	opts        []option.ClientOption
	connections map[string]storageAdapter.StorageConnection
	mu          sync.Mutex
}

// NewGCSProvider creates a GCSProvider over the "storage" configuration section.
// opts are passed to every client it creates.
func NewGCSProvider(section map[string]interface{}, opts ...option.ClientOption) *GCSProvider {
	return &GCSProvider{
		section:     section,
		opts:        opts,
		connections: make(map[string]storageAdapter.StorageConnection),
	}
}

// GetConnection returns the cached client for name, creating it on first use.
func (p *GCSProvider) GetConnection(name string) (storageAdapter.StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}

	cfg, err := storageAdapter.ConnectionConfig(p.section, name)
	if err != nil {
		return nil, err
	}
	if cfg.Type != storageConfig.TypeGCS {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, storageConfig.TypeGCS, cfg.Type)
	}
	conn, err := NewGCSAdapter(context.Background(), cfg, name, p.opts...)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Infof("Created GCS storage connection '%s' (bucket '%s').", name, cfg.BucketName)
	return conn, nil
}

// CloseAll closes every client opened by this provider.
func (p *GCSProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var lastErr error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close GCS connection '%s': %v", name, err)
			lastErr = err
		}
		delete(p.connections, name)
	}
	return lastErr
}

func (p *GCSProvider) Type() string { return storageConfig.TypeGCS }

var _ storageAdapter.StorageProvider = (*GCSProvider)(nil)
