package ring

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_SnapshotWithinCapacity(t *testing.T) {
	b := New(16)
	b.Append([]byte("hello"))
	b.Append([]byte(" world"))

	require.Equal(t, 11, b.Len())
	assert.Equal(t, []byte("hello world"), b.Snapshot())
}

func TestBuffer_OverwritesOldestOnOverflow(t *testing.T) {
	b := New(8)
	b.Append([]byte("abcdefgh")) // exactly fills
	b.Append([]byte("ijk"))      // overflow by 3

	assert.Equal(t, 8, b.Len())
	assert.Equal(t, []byte("defghijk"), b.Snapshot())
}

func TestBuffer_SingleWriteLargerThanCapacity(t *testing.T) {
	b := New(4)
	b.Append([]byte("abcdefgh"))

	assert.Equal(t, 4, b.Len())
	assert.Equal(t, []byte("efgh"), b.Snapshot())
}

func TestBuffer_InvariantLastNBytes(t *testing.T) {
	b := New(32)
	var all bytes.Buffer
	for i := 0; i < 100; i++ {
		chunk := []byte{byte('a' + i%26)}
		all.Write(chunk)
		b.Append(chunk)
	}

	full := all.Bytes()
	want := full[len(full)-32:]
	assert.Equal(t, want, b.Snapshot())
}

func TestNew_DefaultsOnInvalidCapacity(t *testing.T) {
	b := New(0)
	assert.Equal(t, DefaultCapacity, b.Cap())
}

func TestBuffer_EmptyAppendNoop(t *testing.T) {
	b := New(8)
	b.Append(nil)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, []byte{}, b.Snapshot())
}
