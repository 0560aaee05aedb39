package collector

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

const defaultHashCacheSize = 4096

type hashKey struct {
	path string
	algo types.HashType
}

// Hasher computes file digests, remembering results for the current run
type Hasher struct {
	cache *lru.Cache[hashKey, string]
}

// NewHasher creates a hasher caching up to size digests
func NewHasher(size int) *Hasher {
	if size <= 0 {
		size = defaultHashCacheSize
	}
	cache, _ := lru.New[hashKey, string](size)
	return &Hasher{cache: cache}
}

func newHash(algo types.HashType) (hash.Hash, error) {
	switch types.HashType(strings.ToUpper(string(algo))) {
	case types.HashMD5:
		return md5.New(), nil
	case types.HashSHA1:
		return sha1.New(), nil
	case types.HashSHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algo)
	}
}

// HashFile returns the lower-case hex digest of the file at path
func (h *Hasher) HashFile(path string, algo types.HashType) (string, error) {
	key := hashKey{path: path, algo: algo}
	if sum, ok := h.cache.Get(key); ok {
		return sum, nil
	}

	hh, err := newHash(algo)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(hh, f); err != nil {
		return "", fmt.Errorf("cannot read %s: %w", path, err)
	}

	sum := hex.EncodeToString(hh.Sum(nil))
	h.cache.Add(key, sum)
	return sum, nil
}

// Matches reports whether the file at path has the expected digest
func (h *Hasher) Matches(path string, expected *types.Hashed) (bool, error) {
	sum, err := h.HashFile(path, expected.Algorithm)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(expected.Value), sum), nil
}
