package storage_test

import (
	"os"
	"testing"
	"time"

	"github.com/garrettladley/payhook/internal/db"
	xredis "github.com/garrettladley/payhook/internal/redis"
	"github.com/garrettladley/payhook/internal/storage"
)

func TestRedisIdempotencyStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	client, err := xredis.New(t.Context(), xredis.Config{URL: url})
	if err != nil {
		t.Fatalf("redis.New() error = %v", err)
	}
	store := storage.NewRedisIdempotencyStore(storage.RedisConfig{Client: client})
	t.Cleanup(func() { _ = store.Close() })

	storage.RunStoreConformance(t, store, "test:"+time.Now().Format("150405.000000")+":")
}

func TestPostgresIdempotencyStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := db.OpenPostgres(t.Context(), url)
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	store := storage.NewPostgresIdempotencyStore(pool)
	t.Cleanup(func() { _ = store.Close() })

	storage.RunStoreConformance(t, store, "test:"+time.Now().Format("150405.000000")+":")
}
