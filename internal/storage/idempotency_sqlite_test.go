package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/garrettladley/payhook/internal/db"
	"github.com/garrettladley/payhook/internal/storage"
)

func TestSQLiteIdempotencyStore(t *testing.T) {
	t.Parallel()

	sqlDB, err := db.OpenSQLite(t.Context(), filepath.Join(t.TempDir(), "idempotency.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	store := storage.NewSQLiteIdempotencyStore(sqlDB)
	t.Cleanup(func() { _ = store.Close() })

	storage.RunStoreConformance(t, store, "")
}
