// Package engine implements the byte-range cache-and-fetch core: it turns
// arbitrary (offset, length) read requests into block-aligned remote range
// fetches, collapses concurrent requests for the same block into a single
// fetch, and caches fetched blocks in a bounded in-memory tier backed by a
// bounded persistent tier.
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/higlass/httpfs-go/internal/cache"
	"github.com/higlass/httpfs-go/internal/fetch"
	"github.com/higlass/httpfs-go/internal/store"
)

// ErrNotFound indicates the path does not correspond to a reachable remote
// resource. The filesystem adapter surfaces it as "no such file".
var ErrNotFound = errors.New("no such file")

const (
	// DefaultBlockSize is the fetch/cache unit when none is configured.
	DefaultBlockSize = 1 << 20

	// DefaultLRUCapacity bounds the in-memory block and attribute caches.
	DefaultLRUCapacity = 400
)

// Config assembles an Engine. Schema and Fetcher are required; the rest have
// working defaults.
type Config struct {
	// Schema is the backend protocol for this mount: http, https, ftp or s3.
	Schema string

	// BlockSize is the fetch/cache unit in bytes. Fixed for the lifetime of
	// the engine; changing it across restarts makes previously stored block
	// keys unreachable (they age out of the persistent tier, no purge).
	BlockSize int64

	// LRUCapacity is the entry-count bound of each in-memory cache.
	LRUCapacity int

	// Store is the persistent block tier. Optional: without it the engine
	// runs memory-only.
	Store store.BlockStore

	Fetcher fetch.Fetcher
	Logger  zerolog.Logger
}

// Engine coordinates the two cache tiers, the in-flight table, and the
// backend fetcher. Safe for concurrent use by any number of readers.
type Engine struct {
	schema    string
	blockSize int64
	fetcher   fetch.Fetcher
	store     store.BlockStore
	logger    zerolog.Logger

	attrs  *cache.LRU[string, *Attr]
	blocks *cache.LRU[blockKey, []byte]

	mu       sync.Mutex
	inflight map[blockKey]chan struct{}

	stats Metrics
}

// New creates an engine for one mounted filesystem instance.
func New(cfg Config) (*Engine, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	switch cfg.Schema {
	case "http", "https", "ftp", "s3":
	default:
		return nil, fmt.Errorf("unsupported schema: %q", cfg.Schema)
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.LRUCapacity <= 0 {
		cfg.LRUCapacity = DefaultLRUCapacity
	}

	attrs, err := cache.NewLRU[string, *Attr](cfg.LRUCapacity)
	if err != nil {
		return nil, err
	}
	blocks, err := cache.NewLRU[blockKey, []byte](cfg.LRUCapacity)
	if err != nil {
		return nil, err
	}

	return &Engine{
		schema:    cfg.Schema,
		blockSize: cfg.BlockSize,
		fetcher:   cfg.Fetcher,
		store:     cfg.Store,
		logger:    cfg.Logger,
		attrs:     attrs,
		blocks:    blocks,
		inflight:  make(map[blockKey]chan struct{}),
	}, nil
}

// Schema returns the backend protocol of this engine instance.
func (e *Engine) Schema() string {
	return e.schema
}

// BlockSize returns the fetch/cache unit in bytes.
func (e *Engine) BlockSize() int64 {
	return e.blockSize
}

// Metrics returns a snapshot of the engine counters.
func (e *Engine) Metrics() Snapshot {
	return e.stats.Snapshot()
}

// Close flushes and closes the persistent store.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}
