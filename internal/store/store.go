// Package store provides the persistent block store: a durable, size-bounded
// key to bytes store that survives process restarts and serves as the second
// cache tier for fetched blocks. Each backend enforces the configured byte
// cap itself by evicting the least-recently-accessed entries.
package store

import "fmt"

// BlockStore is a durable key to bytes store. Implementations must be safe
// for concurrent use. Errors from a BlockStore are containable: callers
// treat read failures as cache misses and write failures as no-ops.
type BlockStore interface {
	// Get returns the stored bytes for key, or an error if absent or
	// unreadable.
	Get(key string) ([]byte, error)

	// Set stores the bytes under key, evicting older entries as needed to
	// stay within the store's byte cap.
	Set(key string, value []byte) error

	// Contains reports whether key is present.
	Contains(key string) bool

	// Close flushes and closes the store.
	Close() error
}

// BackendType selects the persistent store implementation.
type BackendType string

const (
	BackendTypeBolt     BackendType = "bolt"
	BackendTypePostgres BackendType = "postgres"
	BackendTypeMongoDB  BackendType = "mongodb"
)

// Config holds configuration for creating a block store.
type Config struct {
	Type BackendType

	// MaxBytes caps the total stored payload size. Zero means 1 GiB.
	MaxBytes int64

	// Bolt config
	Dir string

	// Postgres config
	PostgresConnStr string
	PostgresTable   string

	// MongoDB config
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
}

// DefaultMaxBytes is the store byte cap used when none is configured.
const DefaultMaxBytes = 1 << 30

// New creates a block store based on the config.
func New(config Config) (BlockStore, error) {
	maxBytes := config.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	switch config.Type {
	case BackendTypeBolt, "":
		if config.Dir == "" {
			return nil, fmt.Errorf("cache directory is required for the bolt store")
		}
		return NewBoltStore(config.Dir, maxBytes)

	case BackendTypePostgres:
		if config.PostgresConnStr == "" {
			return nil, fmt.Errorf("PostgreSQL connection string is required")
		}
		table := config.PostgresTable
		if table == "" {
			table = "httpfs_blocks"
		}
		return NewPostgresStore(config.PostgresConnStr, table, maxBytes)

	case BackendTypeMongoDB:
		if config.MongoURI == "" {
			return nil, fmt.Errorf("MongoDB URI is required")
		}
		database := config.MongoDatabase
		if database == "" {
			database = "httpfs"
		}
		collection := config.MongoCollection
		if collection == "" {
			collection = "blocks"
		}
		return NewMongoStore(config.MongoURI, database, collection, maxBytes)

	default:
		return nil, fmt.Errorf("unknown store type: %s", config.Type)
	}
}
