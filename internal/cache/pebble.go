package cache

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

const (
	keyPrefix = "cache/"
	// keyLimit is the first key after every key with keyPrefix.
	keyLimit = "cache0"
)

// PebbleStore persists entries across runs of the terminal client.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens or creates a store in dir. fs may be nil for the real
// filesystem.
func OpenPebble(dir string, fs vfs.FS) (*PebbleStore, error) {
	opts := &pebble.Options{}
	if fs != nil {
		opts.FS = fs
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Get(key string) ([]byte, bool, error) {
	v, closer, err := s.db.Get([]byte(keyPrefix + key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), true, nil
}

func (s *PebbleStore) Set(key string, value []byte) error {
	return s.db.Set([]byte(keyPrefix+key), value, pebble.Sync)
}

func (s *PebbleStore) Clear() error {
	return s.db.DeleteRange([]byte(keyPrefix), []byte(keyLimit), pebble.Sync)
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
