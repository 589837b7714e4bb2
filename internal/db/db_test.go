package db

import (
	"path/filepath"
	"testing"
)

func TestOpenSQLiteAppliesMigrations(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "payhook.db")

	sqlDB, err := OpenSQLite(t.Context(), path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var name string
	err = sqlDB.QueryRowContext(t.Context(),
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'idempotency_records'",
	).Scan(&name)
	if err != nil {
		t.Fatalf("idempotency_records table missing: %v", err)
	}

	// reopening must not reapply migrations
	_ = sqlDB.Close()
	again, err := OpenSQLite(t.Context(), path)
	if err != nil {
		t.Fatalf("OpenSQLite() second open error = %v", err)
	}
	t.Cleanup(func() { _ = again.Close() })

	var applied int
	if err := again.QueryRowContext(t.Context(), "SELECT COUNT(*) FROM migrations_history").Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 1 {
		t.Errorf("applied migrations = %d, want 1", applied)
	}
}
