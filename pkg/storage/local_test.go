package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutAndHead(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	exists, _, err := store.Head(ctx, "KubeJobFailed/abc.md")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.PutMarkdown(ctx, "KubeJobFailed/abc.md", "# report"))

	exists, lastModified, err := store.Head(ctx, "KubeJobFailed/abc.md")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NotNil(t, lastModified)
}

func TestLocalStore_PutJSONCreatesNestedDirs(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.PutJSON(context.Background(), "A/b.json", []byte(`{"ok":true}`)))

	data, err := os.ReadFile(filepath.Join(dir, "A", "b.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = store.PutMarkdown(context.Background(), "../escape.md", "x")
	assert.Error(t, err)
}
