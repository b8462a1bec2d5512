package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements BlockStore on a PostgreSQL table. Useful when a
// cache shared between several mount hosts is wanted.
type PostgresStore struct {
	db       *sql.DB
	table    string
	maxBytes int64
}

// NewPostgresStore creates a PostgreSQL-backed block store.
func NewPostgresStore(connStr, table string, maxBytes int64) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	s := &PostgresStore{db: db, table: table, maxBytes: maxBytes}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the blocks table.
func (s *PostgresStore) initSchema() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key VARCHAR(4096) PRIMARY KEY,
			data BYTEA NOT NULL,
			size BIGINT NOT NULL,
			accessed TIMESTAMP NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_%s_accessed ON %s(accessed);
	`, s.table, s.table, s.table)

	_, err := s.db.Exec(query)
	return err
}

// Get returns the stored bytes for key and refreshes its access time.
func (s *PostgresStore) Get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := fmt.Sprintf(
		"UPDATE %s SET accessed = NOW() WHERE key = $1 RETURNING data", s.table)
	var data []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("key not found: %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read block: %w", err)
	}
	return data, nil
}

// Set stores the bytes under key and evicts the oldest-accessed rows while
// the payload total exceeds the byte cap.
func (s *PostgresStore) Set(key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (key, data, size, accessed) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET data = $2, size = $3, accessed = NOW()
	`, s.table)
	if _, err := s.db.ExecContext(ctx, query, key, value, int64(len(value))); err != nil {
		return fmt.Errorf("failed to store block: %w", err)
	}
	return s.enforceCap(ctx, key)
}

// Contains reports whether key is present.
func (s *PostgresStore) Contains(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := fmt.Sprintf("SELECT 1 FROM %s WHERE key = $1", s.table)
	var one int
	return s.db.QueryRowContext(ctx, query, key).Scan(&one) == nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) enforceCap(ctx context.Context, keep string) error {
	totalQuery := fmt.Sprintf("SELECT COALESCE(SUM(size), 0) FROM %s", s.table)
	evictQuery := fmt.Sprintf(`
		DELETE FROM %s WHERE key IN (
			SELECT key FROM %s WHERE key <> $1 ORDER BY accessed ASC LIMIT 16
		)
	`, s.table, s.table)

	for {
		var total int64
		if err := s.db.QueryRowContext(ctx, totalQuery).Scan(&total); err != nil {
			return fmt.Errorf("failed to measure store size: %w", err)
		}
		if total <= s.maxBytes {
			return nil
		}
		result, err := s.db.ExecContext(ctx, evictQuery, keep)
		if err != nil {
			return fmt.Errorf("failed to evict blocks: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil
		}
	}
}
