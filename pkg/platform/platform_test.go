package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSizeAndRename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	h := Host{}
	size, err := h.FileSize(src)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	dst := filepath.Join(dir, "b.bin")
	require.NoError(t, h.Rename(src, dst))
	_, err = os.Stat(dst)
	assert.NoError(t, err)
}

func TestBasename(t *testing.T) {
	assert.Equal(t, "file.bin", Host{}.Basename("/a/b/file.bin"))
}

func TestDecodeToStringDropsNonASCII(t *testing.T) {
	got := Host{}.DecodeToString([]byte{'h', 'i', 0xFF, '!'})
	assert.Equal(t, "hi!", got)
}

func TestNewSHA256Hashes(t *testing.T) {
	h := Host{}.NewSHA256()
	h.Write([]byte("abc"))
	sum := h.Sum(nil)
	assert.Len(t, sum, 32)
}
