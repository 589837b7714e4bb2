package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	_ IdempotencyStore  = (*SQLiteIdempotencyStore)(nil)
	_ ConditionalPutter = (*SQLiteIdempotencyStore)(nil)
	_ ExpirySweeper     = (*SQLiteIdempotencyStore)(nil)
	_ RecordLister      = (*SQLiteIdempotencyStore)(nil)
)

// times are stored as unix milliseconds
const (
	sqliteSelectRecord = `
SELECT event_id, status, processed_at, expires_at, metadata
FROM idempotency_records
WHERE event_id = ? AND expires_at > ?`

	sqliteInsertIfAbsent = `
INSERT INTO idempotency_records (event_id, status, processed_at, expires_at, metadata)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (event_id) DO UPDATE SET
	status = excluded.status,
	processed_at = excluded.processed_at,
	expires_at = excluded.expires_at,
	metadata = excluded.metadata
WHERE idempotency_records.expires_at <= ?`

	sqliteUpsertUnlessFinal = `
INSERT INTO idempotency_records (event_id, status, processed_at, expires_at, metadata)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (event_id) DO UPDATE SET
	status = excluded.status,
	processed_at = excluded.processed_at,
	expires_at = excluded.expires_at,
	metadata = excluded.metadata
WHERE idempotency_records.status = 'processing' OR idempotency_records.expires_at <= ?`

	sqliteDeleteExpired = `DELETE FROM idempotency_records WHERE expires_at <= ?`

	sqliteListByStatus = `
SELECT event_id, status, processed_at, expires_at, metadata
FROM idempotency_records
WHERE status = ? AND expires_at > ?
ORDER BY processed_at
LIMIT ?`
)

// SQLiteIdempotencyStore serves single-node deployments from a local file.
type SQLiteIdempotencyStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteIdempotencyStore(db *sql.DB) *SQLiteIdempotencyStore {
	return &SQLiteIdempotencyStore{db: db, now: time.Now}
}

func (s *SQLiteIdempotencyStore) Source() string { return SourceSQLite }

func (s *SQLiteIdempotencyStore) Get(ctx context.Context, eventID string) (IdempotencyRecord, error) {
	rec, err := scanSQLiteRecord(s.db.QueryRowContext(ctx, sqliteSelectRecord, eventID, s.now().UnixMilli()))
	if errors.Is(err, sql.ErrNoRows) {
		return IdempotencyRecord{}, ErrNotFound
	}
	if err != nil {
		return IdempotencyRecord{}, fmt.Errorf("select idempotency record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteIdempotencyStore) Put(ctx context.Context, rec IdempotencyRecord) error {
	written, err := s.exec(ctx, sqliteUpsertUnlessFinal, rec)
	if err != nil {
		return fmt.Errorf("upsert idempotency record: %w", err)
	}
	if !written {
		return ErrRecordFinal
	}
	return nil
}

func (s *SQLiteIdempotencyStore) PutIfAbsent(ctx context.Context, rec IdempotencyRecord) (bool, error) {
	written, err := s.exec(ctx, sqliteInsertIfAbsent, rec)
	if err != nil {
		return false, fmt.Errorf("insert idempotency record: %w", err)
	}
	return written, nil
}

func (s *SQLiteIdempotencyStore) exec(ctx context.Context, query string, rec IdempotencyRecord) (bool, error) {
	metadata, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, query,
		rec.EventID,
		string(rec.Status),
		rec.ProcessedAt.UnixMilli(),
		rec.ExpiresAt.UnixMilli(),
		string(metadata),
		s.now().UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteIdempotencyStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqliteDeleteExpired, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	return n, nil
}

func (s *SQLiteIdempotencyStore) ListByStatus(ctx context.Context, status IdempotencyStatus, limit int) ([]IdempotencyRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, sqliteListByStatus, string(status), s.now().UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("list idempotency records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []IdempotencyRecord
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
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

func (s *SQLiteIdempotencyStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteIdempotencyStore) Close() error {
	return s.db.Close()
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row sqlScanner) (IdempotencyRecord, error) {
	var (
		rec         IdempotencyRecord
		status      string
		processedAt int64
		expiresAt   int64
		metadata    string
	)
	if err := row.Scan(&rec.EventID, &status, &processedAt, &expiresAt, &metadata); err != nil {
		return IdempotencyRecord{}, err
	}
	rec.Status = IdempotencyStatus(status)
	rec.ProcessedAt = time.UnixMilli(processedAt)
	rec.ExpiresAt = time.UnixMilli(expiresAt)
	md, err := decodeMetadata([]byte(metadata))
	if err != nil {
		return IdempotencyRecord{}, err
	}
	rec.Metadata = md
	return rec, nil
}
