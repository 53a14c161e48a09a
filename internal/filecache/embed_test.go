package filecache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbed_InlinesTextContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	c := New(4)
	block, err := Embed(c, []string{path}, "embed", "utf-8")
	require.NoError(t, err)
	assert.Contains(t, block, "mode=embed encoding=utf-8")
	assert.Contains(t, block, "hello world")
}

func TestEmbed_RefModeOmitsContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("secret content"), 0o644))

	c := New(4)
	block, err := Embed(c, []string{path}, "ref", "utf-8")
	require.NoError(t, err)
	assert.Contains(t, block, "mode=ref")
	assert.NotContains(t, block, "secret content")
}

func TestEmbed_AutoEncodingBase64sBinaryContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.bin")
	binary := []byte{0x00, 0xFF, 0x10, 0x80, 0x00, 0xFE}
	require.NoError(t, os.WriteFile(path, binary, 0o644))

	c := New(4)
	block, err := Embed(c, []string{path}, "embed", "auto")
	require.NoError(t, err)
	assert.Contains(t, block, "encoding=base64")
}

func TestEmbed_AutoModeRefsLargeFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", inlineSizeLimit+1)), 0o644))

	c := New(4)
	block, err := Embed(c, []string{path}, "auto", "utf-8")
	require.NoError(t, err)
	assert.Contains(t, block, "mode=ref")
}

func TestEmbed_ExpandsGlobsDeterministically(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))

	c := New(4)
	block, err := Embed(c, []string{filepath.Join(dir, "*.txt")}, "embed", "utf-8")
	require.NoError(t, err)
	assert.True(t, strings.Index(block, "a.txt") < strings.Index(block, "b.txt"))
}

func TestEmbed_NoFilesReturnsEmpty(t *testing.T) {
	c := New(4)
	block, err := Embed(c, nil, "embed", "utf-8")
	require.NoError(t, err)
	assert.Empty(t, block)
}
