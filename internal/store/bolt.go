package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketBlocks = []byte("blocks")
	bucketAccess = []byte("access")
)

// BoltStore implements BlockStore on a single bbolt file in the cache
// directory. A companion bucket records per-key access times; when the total
// payload exceeds the byte cap the least-recently-accessed entries are
// deleted.
type BoltStore struct {
	db       *bolt.DB
	maxBytes int64
}

// NewBoltStore opens (or creates) the store at dir/blocks.db.
func NewBoltStore(dir string, maxBytes int64) (*BoltStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := bolt.Open(filepath.Join(dir, "blocks.db"), 0o644, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open block store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketBlocks); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketAccess)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize block store: %w", err)
	}

	return &BoltStore{db: db, maxBytes: maxBytes}, nil
}

// Get returns the stored bytes for key and refreshes its access time.
func (s *BoltStore) Get(key string) ([]byte, error) {
	var data []byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketBlocks).Get([]byte(key))
		if raw == nil {
			return fmt.Errorf("key not found: %s", key)
		}
		data = append([]byte(nil), raw...)
		return tx.Bucket(bucketAccess).Put([]byte(key), nowBytes())
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set stores the bytes under key, then evicts the least-recently-accessed
// entries until the total payload fits the byte cap.
func (s *BoltStore) Set(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		blocks := tx.Bucket(bucketBlocks)
		access := tx.Bucket(bucketAccess)

		if err := blocks.Put([]byte(key), value); err != nil {
			return err
		}
		if err := access.Put([]byte(key), nowBytes()); err != nil {
			return err
		}
		return s.enforceCap(blocks, access, key)
	})
}

// Contains reports whether key is present without refreshing recency.
func (s *BoltStore) Contains(key string) bool {
	found := false
	s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketBlocks).Get([]byte(key)) != nil
		return nil
	})
	return found
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Len returns the number of stored blocks.
func (s *BoltStore) Len() int {
	n := 0
	s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketBlocks).Stats().KeyN
		return nil
	})
	return n
}

// enforceCap deletes the oldest-accessed entries until the payload total is
// within the cap. The entry named keep (the one just written) is never
// evicted.
func (s *BoltStore) enforceCap(blocks, access *bolt.Bucket, keep string) error {
	type entry struct {
		key      []byte
		accessed []byte
		size     int64
	}

	var total int64
	var entries []entry
	c := blocks.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		total += int64(len(v))
		if string(k) == keep {
			continue
		}
		entries = append(entries, entry{
			key:      append([]byte(nil), k...),
			accessed: append([]byte(nil), access.Get(k)...),
			size:     int64(len(v)),
		})
	}
	if total <= s.maxBytes {
		return nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].accessed, entries[j].accessed) < 0
	})

	for _, e := range entries {
		if total <= s.maxBytes {
			break
		}
		if err := blocks.Delete(e.key); err != nil {
			return err
		}
		if err := access.Delete(e.key); err != nil {
			return err
		}
		total -= e.size
	}
	return nil
}

// nowBytes returns the current time as big-endian nanoseconds, so that byte
// comparison orders access stamps chronologically.
func nowBytes() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(time.Now().UnixNano()))
	return buf
}
