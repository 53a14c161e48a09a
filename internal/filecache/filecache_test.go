package filecache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ReadsAndCachesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	c := New(4)
	content, err := c.Get(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
	assert.Equal(t, 1, c.Size())
}

func TestGet_DetectsModificationAndRereads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	c := New(4)
	first, err := c.Get(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(first))

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	second, err := c.Get(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(second))
}

func TestGet_EvictsOldestBeyondMaxSize(t *testing.T) {
	dir := t.TempDir()
	c := New(2)
	paths := make([]string, 3)
	for i := range paths {
		p := filepath.Join(dir, string(rune('a'+i))+".txt")
		require.NoError(t, os.WriteFile(p, []byte("data"), 0o644))
		paths[i] = p
		_, err := c.Get(p)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Size())
}

func TestGet_MissingFileReturnsError(t *testing.T) {
	c := New(4)
	_, err := c.Get("/no/such/file-xyz")
	assert.Error(t, err)
}

func TestReset_ClearsEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	c := New(4)
	_, err := c.Get(path)
	require.NoError(t, err)
	c.Reset()
	assert.Equal(t, 0, c.Size())
}
