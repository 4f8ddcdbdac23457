// Package utils holds small filesystem helpers shared by the token, credential,
// and profile caches.
package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
)

// HashCacheKey returns the lowercase hex SHA-1 digest of key, the scheme the
// token cache, registration cache, and credential cache all use to name their
// files.
func HashCacheKey(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// WriteFileAtomic writes data to path by writing to a sibling temp file and
// renaming it into place, so a crash mid-write never leaves a torn cache file
// behind.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := EnsureDirectoryExists(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ReadCache reads the raw bytes of a cache file. A missing file is reported
// through the ordinary os.IsNotExist path so callers can tell "miss" from
// "corrupt".
func ReadCache(path string) ([]byte, error) {
	return os.ReadFile(path)
}
