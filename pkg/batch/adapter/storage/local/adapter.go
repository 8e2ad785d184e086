// Package local provides a local file system implementation of the storage adapter interfaces.
// A bucket is a directory under BaseDir; object names are slash-separated paths within it.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	storageAdapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// localAdapter implements storage.StorageConnection for the local file system.
type localAdapter struct {
	cfg  storageConfig.StorageConfig // Storage configuration; BaseDir is the root of all keys.
	name string                      // Name of the storage connection.
}

var _ storageAdapter.StorageConnection = (*localAdapter)(nil)

// NewLocalAdapter creates a localAdapter, creating BaseDir when it does not exist.
//
// Parameters:
//   cfg: The storage configuration. BaseDir must be set.
//   name: The name of the storage connection.
//
// Returns:
//   A StorageConnection rooted at BaseDir, or an error if BaseDir is unusable.
func NewLocalAdapter(cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage adapter '%s': base_dir must be specified", name)
	}
	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
			return nil, fmt.Errorf("local storage adapter '%s': failed to create base_dir '%s': %w", name, cfg.BaseDir, err)
		}
	case err != nil:
		return nil, fmt.Errorf("local storage adapter '%s': failed to stat base_dir '%s': %w", name, cfg.BaseDir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("local storage adapter '%s': base_dir '%s' is not a directory", name, cfg.BaseDir)
	}
	return &localAdapter{cfg: cfg, name: name}, nil
}

func (a *localAdapter) Close() error { return nil }

func (a *localAdapter) Type() string { return storageConfig.TypeLocal }

func (a *localAdapter) Name() string { return a.name }

func (a *localAdapter) Config() storageConfig.StorageConfig { return a.cfg }

// Upload writes data to a temporary file and renames it into place, so readers never see
// a partially written object.
func (a *localAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in '%s': %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write data to '%s': %w", fullPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close '%s': %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("failed to move upload into '%s': %w", fullPath, err)
	}
	logger.Debugf("Uploaded '%s' (local adapter '%s').", fullPath, a.name)
	return nil
}

// Download opens the object for reading. The caller closes the returned reader.
func (a *localAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open '%s': %w", fullPath, err)
	}
	return file, nil
}

// ListObjects walks the bucket directory. A missing bucket lists nothing.
func (a *localAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	basePath, err := a.resolvePath(bucket, "")
	if err != nil {
		return err
	}

	err = filepath.WalkDir(basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(basePath, path)
		if err != nil {
			return err
		}
		objectName := filepath.ToSlash(rel)
		if !strings.HasPrefix(objectName, prefix) {
			return nil
		}
		return fn(objectName)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list '%s' with prefix '%s': %w", basePath, prefix, err)
	}
	return nil
}

// DeleteObject removes the object. Deleting a missing object is not an error.
func (a *localAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete '%s': %w", fullPath, err)
	}
	return nil
}

// resolvePath maps bucket/objectName under BaseDir and refuses paths escaping it.
func (a *localAdapter) resolvePath(bucket, objectName string) (string, error) {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	fullPath := filepath.Join(a.cfg.BaseDir, bucket, filepath.FromSlash(objectName))

	absBaseDir, err := filepath.Abs(a.cfg.BaseDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for base_dir '%s': %w", a.cfg.BaseDir, err)
	}
	absFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", fullPath, err)
	}
	if absFullPath != absBaseDir && !strings.HasPrefix(absFullPath, absBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("resolved path '%s' is outside of base_dir '%s'", fullPath, a.cfg.BaseDir)
	}
	return fullPath, nil
}

// LocalProvider implements storage.StorageProvider for local file system connections.
type LocalProvider struct {
	section     map[string]interface{}
	connections map[string]storageAdapter.StorageConnection
	mu          sync.Mutex
}

// NewLocalProvider creates a LocalProvider over the "storage" configuration section.
func NewLocalProvider(section map[string]interface{}) *LocalProvider {
	return &LocalProvider{
		section:     section,
		connections: make(map[string]storageAdapter.StorageConnection),
	}
}

// GetConnection returns the cached connection for name, creating it on first use.
func (p *LocalProvider) GetConnection(name string) (storageAdapter.StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}

	cfg, err := storageAdapter.ConnectionConfig(p.section, name)
	if err != nil {
		return nil, err
	}
	if cfg.Type != storageConfig.TypeLocal {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, storageConfig.TypeLocal, cfg.Type)
	}
	conn, err := NewLocalAdapter(cfg, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Debugf("Created local storage connection '%s' at '%s'.", name, cfg.BaseDir)
	return conn, nil
}

// CloseAll forgets every connection.
func (p *LocalProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name := range p.connections {
		delete(p.connections, name)
	}
	return nil
}

func (p *LocalProvider) Type() string { return storageConfig.TypeLocal }

var _ storageAdapter.StorageProvider = (*LocalProvider)(nil)
