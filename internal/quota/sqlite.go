package quota

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteStore is a durable CounterStore backed by the usage table created by
// the shared migrations. Durable across restarts, still single-instance.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database connection.
// The caller is responsible for having run migrations.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Incr implements [CounterStore] with a single upsert so the
// increment-and-read is atomic even across processes sharing the file.
func (s *SQLiteStore) Incr(ctx context.Context, day, key string) (int64, error) {
	query := `
		INSERT INTO usage (day, key, count) VALUES (?, ?, 1)
		ON CONFLICT(day, key) DO UPDATE SET count = count + 1
		RETURNING count
	`

	var count int64
	if err := s.db.QueryRowContext(ctx, query, day, key).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}

	return count, nil
}
