package cache

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
)

// Key derives a unique cache key for one logical resource. Two requests with
// the same URL and kind always map to the same key.
func Key(rawURL string, kind Kind) string {
	hash := md5.Sum([]byte(kind.String() + "|" + rawURL))
	return hex.EncodeToString(hash[:])
}

// Store manages the on-disk cache directory.
type Store struct {
	root string
}

// NewStore creates the cache directory if needed and returns a store rooted
// at its absolute path.
func NewStore(dir string) (*Store, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

// Root returns the absolute cache directory path.
func (s *Store) Root() string {
	return s.root
}

// Path returns the full path for a file in the cache.
func (s *Store) Path(name string) string {
	return filepath.Join(s.root, name)
}

// Exists checks whether a file is present in the cache.
func (s *Store) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Remove deletes a cached file. Missing files are not an error.
func (s *Store) Remove(name string) error {
	err := os.Remove(s.Path(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
