package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	go_json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

var (
	_ IdempotencyStore  = (*RedisIdempotencyStore)(nil)
	_ ConditionalPutter = (*RedisIdempotencyStore)(nil)
)

const idempotencyKeyPrefix = "idempotency:"

//go:embed idempotency_put.lua
var idempotencyPutLua string

var idempotencyPutScript = redis.NewScript(idempotencyPutLua)

// RedisIdempotencyStore keeps one JSON value per event id and relies on key
// expiry for TTL enforcement.
type RedisIdempotencyStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisIdempotencyStore(cfg RedisConfig) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: cfg.Client, now: time.Now}
}

func (r *RedisIdempotencyStore) key(eventID string) string {
	return idempotencyKeyPrefix + eventID
}

func (r *RedisIdempotencyStore) Source() string { return SourceRedis }

func (r *RedisIdempotencyStore) Get(ctx context.Context, eventID string) (IdempotencyRecord, error) {
	data, err := r.client.Get(ctx, r.key(eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return IdempotencyRecord{}, ErrNotFound
	}
	if err != nil {
		return IdempotencyRecord{}, fmt.Errorf("failed to get idempotency record: %w", err)
	}

	var rec IdempotencyRecord
	if err := go_json.Unmarshal(data, &rec); err != nil {
		return IdempotencyRecord{}, fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}
	return rec, nil
}

// Put of an already expired record is a no-op since Redis would drop it at once.
func (r *RedisIdempotencyStore) Put(ctx context.Context, rec IdempotencyRecord) error {
	now := r.now()
	if rec.Expired(now) {
		return nil
	}

	data, err := go_json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	ttl := ttlUntil(rec.ExpiresAt, now)
	written, err := idempotencyPutScript.Run(ctx, r.client,
		[]string{r.key(rec.EventID)},
		data,
		ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to put idempotency record: %w", err)
	}
	if written == 0 {
		return ErrRecordFinal
	}
	return nil
}

func (r *RedisIdempotencyStore) PutIfAbsent(ctx context.Context, rec IdempotencyRecord) (bool, error) {
	now := r.now()
	if rec.Expired(now) {
		return true, nil
	}

	data, err := go_json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.key(rec.EventID), data, ttlUntil(rec.ExpiresAt, now)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency record: %w", err)
	}
	return ok, nil
}

func (r *RedisIdempotencyStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisIdempotencyStore) Close() error {
	return r.client.Close()
}
