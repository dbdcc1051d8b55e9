package calllog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps call records in the call_records table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a store backed by pool. The schema is created by db.NewPool migrations.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const insertCallRecord = `
INSERT INTO call_records (from_name, to_name, status, reason, recorded_at)
VALUES ($1, $2, $3, $4, $5)`

const listCallRecords = `
SELECT from_name, to_name, status, reason, recorded_at
FROM call_records
WHERE (from_name = $1 AND to_name = $2) OR (from_name = $2 AND to_name = $1)
ORDER BY recorded_at DESC, id DESC
LIMIT $3`

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	_, err := s.pool.Exec(ctx, insertCallRecord,
		entry.From, entry.To, string(entry.Status), entry.Reason, entry.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert call record: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, a, b string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, listCallRecords, a, b, limit)
	if err != nil {
		return nil, fmt.Errorf("query call records: %w", err)
	}
	defer rows.Close()

	result := []Entry{}
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.From, &e.To, &status, &e.Reason, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan call record: %w", err)
		}
		e.Status = Status(status)
		result = append(result, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call records: %w", err)
	}
	return result, nil
}
