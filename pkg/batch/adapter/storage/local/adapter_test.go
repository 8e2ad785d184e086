package local_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage/local"
)

func newConnection(t *testing.T) (storage.StorageConnection, string) {
	t.Helper()
	base := filepath.Join(t.TempDir(), "data")
	section := map[string]interface{}{
		"input": map[string]interface{}{"type": "local", "base_dir": base, "bucket_name": "landing"},
	}
	resolver := storage.NewConnectionResolver([]storage.StorageProvider{local.NewLocalProvider(section)}, section)
	conn, err := resolver.ResolveStorageConnection(context.Background(), "input")
	require.NoError(t, err)
	return conn, base
}

func TestLocalAdapter_UploadDownloadListDelete(t *testing.T) {
	ctx := context.Background()
	conn, base := newConnection(t)

	require.NoError(t, conn.Upload(ctx, "", "employees/2024/part-0002.csv", strings.NewReader("b"), "text/csv"))
	require.NoError(t, conn.Upload(ctx, "", "employees/2024/part-0001.csv", strings.NewReader("a"), "text/csv"))
	require.NoError(t, conn.Upload(ctx, "", "other.txt", strings.NewReader("c"), "text/plain"))
	assert.FileExists(t, filepath.Join(base, "landing", "employees", "2024", "part-0001.csv"))

	r, err := conn.Download(ctx, "", "employees/2024/part-0001.csv")
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "a", string(body))

	var names []string
	require.NoError(t, conn.ListObjects(ctx, "", "employees/", func(name string) error {
		names = append(names, name)
		return nil
	}))
	assert.Equal(t, []string{"employees/2024/part-0001.csv", "employees/2024/part-0002.csv"}, names)

	require.NoError(t, conn.DeleteObject(ctx, "", "other.txt"))
	require.NoError(t, conn.DeleteObject(ctx, "", "other.txt"))
	_, err = os.Stat(filepath.Join(base, "landing", "other.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalAdapter_RejectsEscapingPaths(t *testing.T) {
	conn, _ := newConnection(t)
	err := conn.Upload(context.Background(), "", "../../outside.csv", strings.NewReader("x"), "text/csv")
	assert.ErrorContains(t, err, "outside of base_dir")
}

func TestLocalAdapter_ListMissingBucket(t *testing.T) {
	conn, _ := newConnection(t)
	called := false
	err := conn.ListObjects(context.Background(), "nothing-here", "", func(string) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestLocalAdapter_DownloadMissing(t *testing.T) {
	conn, _ := newConnection(t)
	_, err := conn.Download(context.Background(), "", "missing.csv")
	assert.Error(t, err)
}

func TestConnectionResolver_UnknownType(t *testing.T) {
	section := map[string]interface{}{
		"s3": map[string]interface{}{"type": "s3"},
	}
	resolver := storage.NewConnectionResolver([]storage.StorageProvider{local.NewLocalProvider(section)}, section)
	_, err := resolver.ResolveConnection(context.Background(), "s3")
	assert.ErrorContains(t, err, "no storage provider found for type 's3'")
	assert.NoError(t, resolver.CloseAll())
}
