package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	go_json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	_ IdempotencyStore  = (*PostgresIdempotencyStore)(nil)
	_ ConditionalPutter = (*PostgresIdempotencyStore)(nil)
	_ ExpirySweeper     = (*PostgresIdempotencyStore)(nil)
	_ RecordLister      = (*PostgresIdempotencyStore)(nil)
)

const (
	pgSelectRecord = `
SELECT event_id, status, processed_at, expires_at, metadata
FROM idempotency_records
WHERE event_id = $1 AND expires_at > $2`

	// expired rows count as absent
	pgInsertIfAbsent = `
INSERT INTO idempotency_records (event_id, status, processed_at, expires_at, metadata)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (event_id) DO UPDATE SET
	status = EXCLUDED.status,
	processed_at = EXCLUDED.processed_at,
	expires_at = EXCLUDED.expires_at,
	metadata = EXCLUDED.metadata
WHERE idempotency_records.expires_at <= $6`

	pgUpsertUnlessFinal = `
INSERT INTO idempotency_records (event_id, status, processed_at, expires_at, metadata)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (event_id) DO UPDATE SET
	status = EXCLUDED.status,
	processed_at = EXCLUDED.processed_at,
	expires_at = EXCLUDED.expires_at,
	metadata = EXCLUDED.metadata
WHERE idempotency_records.status = 'processing' OR idempotency_records.expires_at <= $6`

	pgDeleteExpired = `DELETE FROM idempotency_records WHERE expires_at <= $1`

	pgListByStatus = `
SELECT event_id, status, processed_at, expires_at, metadata
FROM idempotency_records
WHERE status = $1 AND expires_at > $2
ORDER BY processed_at
LIMIT $3`
)

const defaultListLimit = 100

type PostgresIdempotencyStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresIdempotencyStore(pool *pgxpool.Pool) *PostgresIdempotencyStore {
	return &PostgresIdempotencyStore{pool: pool, now: time.Now}
}

func (s *PostgresIdempotencyStore) Source() string { return SourcePostgres }

func (s *PostgresIdempotencyStore) Get(ctx context.Context, eventID string) (IdempotencyRecord, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, pgSelectRecord, eventID, s.now()))
	if errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, ErrNotFound
	}
	if err != nil {
		return IdempotencyRecord{}, fmt.Errorf("select idempotency record: %w", err)
	}
	return rec, nil
}

func (s *PostgresIdempotencyStore) Put(ctx context.Context, rec IdempotencyRecord) error {
	written, err := s.exec(ctx, pgUpsertUnlessFinal, rec)
	if err != nil {
		return fmt.Errorf("upsert idempotency record: %w", err)
	}
	if !written {
		return ErrRecordFinal
	}
	return nil
}

func (s *PostgresIdempotencyStore) PutIfAbsent(ctx context.Context, rec IdempotencyRecord) (bool, error) {
	written, err := s.exec(ctx, pgInsertIfAbsent, rec)
	if err != nil {
		return false, fmt.Errorf("insert idempotency record: %w", err)
	}
	return written, nil
}

func (s *PostgresIdempotencyStore) exec(ctx context.Context, query string, rec IdempotencyRecord) (bool, error) {
	metadata, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, query,
		rec.EventID,
		string(rec.Status),
		rec.ProcessedAt,
		rec.ExpiresAt,
		metadata,
		s.now(),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresIdempotencyStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, pgDeleteExpired, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresIdempotencyStore) ListByStatus(ctx context.Context, status IdempotencyStatus, limit int) ([]IdempotencyRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.pool.Query(ctx, pgListByStatus, string(status), s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("list idempotency records: %w", err)
	}
	defer rows.Close()

	var out []IdempotencyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan idempotency record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list idempotency records: %w", err)
	}
	return out, nil
}

func (s *PostgresIdempotencyStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresIdempotencyStore) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (IdempotencyRecord, error) {
	var (
		rec      IdempotencyRecord
		status   string
		metadata []byte
	)
	if err := row.Scan(&rec.EventID, &status, &rec.ProcessedAt, &rec.ExpiresAt, &metadata); err != nil {
		return IdempotencyRecord{}, err
	}
	rec.Status = IdempotencyStatus(status)
	md, err := decodeMetadata(metadata)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	rec.Metadata = md
	return rec, nil
}

func encodeMetadata(md map[string]string) ([]byte, error) {
	if md == nil {
		md = map[string]string{}
	}
	data, err := go_json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return data, nil
}

func decodeMetadata(data []byte) (map[string]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var md map[string]string
	if err := go_json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if len(md) == 0 {
		return nil, nil
	}
	return md, nil
}
