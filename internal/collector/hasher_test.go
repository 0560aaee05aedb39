package collector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

const (
	helloMD5    = "5d41402abc4b2a76b9719d911017c592"
	helloSHA1   = "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"
	helloSHA256 = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestHasher_HashFile(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "hello.txt"), "hello")
	h := NewHasher(0)

	for algo, want := range map[types.HashType]string{
		types.HashMD5:    helloMD5,
		types.HashSHA1:   helloSHA1,
		types.HashSHA256: helloSHA256,
	} {
		got, err := h.HashFile(path, algo)
		require.NoError(t, err)
		assert.Equal(t, want, got, algo)
	}

	_, err := h.HashFile(path, "CRC32")
	assert.Error(t, err)

	_, err = h.HashFile(filepath.Join(t.TempDir(), "missing"), types.HashMD5)
	assert.Error(t, err)
}

func TestHasher_MatchesCaseInsensitive(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "hello.txt"), "hello")
	h := NewHasher(8)

	ok, err := h.Matches(path, &types.Hashed{Algorithm: types.HashMD5, Value: "5D41402ABC4B2A76B9719D911017C592"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Matches(path, &types.Hashed{Algorithm: types.HashSHA1, Value: helloMD5})
	require.NoError(t, err)
	assert.False(t, ok)
}
