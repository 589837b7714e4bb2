package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type conformanceStore interface {
	IdempotencyStore
	ConditionalPutter
}

func newRecord(id string, status IdempotencyStatus, now time.Time, ttl time.Duration) IdempotencyRecord {
	return IdempotencyRecord{
		EventID:     id,
		Status:      status,
		ProcessedAt: now,
		ExpiresAt:   now.Add(ttl),
		Metadata:    map[string]string{MetadataTransactionID: "txn_" + id},
	}
}

// runStoreConformance checks the contract every backend shares. prefix keeps
// ids unique when the backend is shared across runs.
func runStoreConformance(t *testing.T, store conformanceStore, prefix string) {
	t.Helper()

	ctx := t.Context()
	now := time.Now().Truncate(time.Millisecond)
	id := func(s string) string { return prefix + s }
	cmpTime := cmpopts.EquateApproxTime(time.Millisecond)

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, id("missing"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want %v", err, ErrNotFound)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		rec := newRecord(id("evt_put"), StatusCompleted, now, time.Hour)
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		got, err := store.Get(ctx, rec.EventID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if diff := cmp.Diff(rec, got, cmpTime); diff != "" {
			t.Errorf("Get() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("put if absent", func(t *testing.T) {
		rec := newRecord(id("evt_reserve"), StatusProcessing, now, time.Hour)
		ok, err := store.PutIfAbsent(ctx, rec)
		if err != nil || !ok {
			t.Fatalf("PutIfAbsent() first = %v, %v; want true, nil", ok, err)
		}
		ok, err = store.PutIfAbsent(ctx, rec)
		if err != nil || ok {
			t.Fatalf("PutIfAbsent() second = %v, %v; want false, nil", ok, err)
		}
	})

	t.Run("processing advances to completed", func(t *testing.T) {
		rec := newRecord(id("evt_advance"), StatusProcessing, now, time.Hour)
		if _, err := store.PutIfAbsent(ctx, rec); err != nil {
			t.Fatalf("PutIfAbsent() error = %v", err)
		}
		rec.Status = StatusCompleted
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		got, err := store.Get(ctx, rec.EventID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Status != StatusCompleted {
			t.Errorf("Status = %q, want %q", got.Status, StatusCompleted)
		}
	})

	t.Run("terminal never reverts", func(t *testing.T) {
		rec := newRecord(id("evt_final"), StatusFailed, now, time.Hour)
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		rec.Status = StatusProcessing
		if err := store.Put(ctx, rec); !errors.Is(err, ErrRecordFinal) {
			t.Errorf("Put() over terminal error = %v, want %v", err, ErrRecordFinal)
		}
		got, err := store.Get(ctx, rec.EventID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Status != StatusFailed {
			t.Errorf("Status = %q, want %q", got.Status, StatusFailed)
		}
	})

	t.Run("expired record is absent", func(t *testing.T) {
		rec := newRecord(id("evt_expired"), StatusCompleted, now.Add(-2*time.Hour), time.Hour)
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if _, err := store.Get(ctx, rec.EventID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want %v", err, ErrNotFound)
		}
		fresh := newRecord(rec.EventID, StatusProcessing, now, time.Hour)
		ok, err := store.PutIfAbsent(ctx, fresh)
		if err != nil || !ok {
			t.Errorf("PutIfAbsent() over expired = %v, %v; want true, nil", ok, err)
		}
	})
}

func TestMemoryIdempotencyStoreConformance(t *testing.T) {
	t.Parallel()
	runStoreConformance(t, NewMemoryIdempotencyStore(), "")
}

func TestMemoryIdempotencyStoreEvictsOldest(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryIdempotencyStore(
		WithMaxEntries(3),
		WithMemoryClock(func() time.Time { return now }),
	)

	for i := range 4 {
		rec := newRecord(fmt.Sprintf("evt_%d", i), StatusCompleted, now.Add(time.Duration(i)*time.Second), time.Hour)
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("Put(%d) error = %v", i, err)
		}
	}

	if got := store.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
	if _, err := store.Get(ctx, "evt_0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(evt_0) error = %v, want evicted", err)
	}
	for _, id := range []string{"evt_1", "evt_2", "evt_3"} {
		if _, err := store.Get(ctx, id); err != nil {
			t.Errorf("Get(%s) error = %v", id, err)
		}
	}
}

func TestMemoryIdempotencyStoreSweepsOnWrite(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	store := NewMemoryIdempotencyStore(WithMemoryClock(func() time.Time { return clock() }))

	if err := store.Put(ctx, newRecord("evt_old", StatusCompleted, now, time.Minute)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	later := now.Add(2 * time.Minute)
	clock = func() time.Time { return later }

	if err := store.Put(ctx, newRecord("evt_new", StatusCompleted, later, time.Minute)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if got := store.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 after sweep", got)
	}
}

func TestMemoryIdempotencyStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	store := NewMemoryIdempotencyStore()
	rec := newRecord("evt_copy", StatusCompleted, time.Now(), time.Hour)
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	rec.Metadata[MetadataTransactionID] = "mutated"

	got, err := store.Get(ctx, "evt_copy")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Metadata[MetadataTransactionID] != "txn_evt_copy" {
		t.Errorf("Metadata mutated through caller map: %v", got.Metadata)
	}
}

func TestMemoryIdempotencyStoreListAndDelete(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	now := time.Now()
	store := NewMemoryIdempotencyStore()

	_ = store.Put(ctx, newRecord("evt_ok", StatusCompleted, now, time.Hour))
	_ = store.Put(ctx, newRecord("evt_bad", StatusFailed, now, time.Hour))

	failed, err := store.ListByStatus(ctx, StatusFailed, 10)
	if err != nil {
		t.Fatalf("ListByStatus() error = %v", err)
	}
	if len(failed) != 1 || failed[0].EventID != "evt_bad" {
		t.Errorf("ListByStatus() = %+v, want evt_bad only", failed)
	}

	n, err := store.DeleteExpired(ctx, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteExpired() = %d, want 2", n)
	}
}

func TestParseIdempotencyStatus(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"processing", "completed", "failed"} {
		if _, err := ParseIdempotencyStatus(s); err != nil {
			t.Errorf("ParseIdempotencyStatus(%q) error = %v", s, err)
		}
	}
	if _, err := ParseIdempotencyStatus("done"); err == nil {
		t.Error("ParseIdempotencyStatus(done) error = nil, want error")
	}
}

type failingStore struct {
	*MemoryIdempotencyStore
	err error
}

func (f *failingStore) Source() string { return "broken" }

func (f *failingStore) Get(context.Context, string) (IdempotencyRecord, error) {
	return IdempotencyRecord{}, f.err
}

func (f *failingStore) Put(context.Context, IdempotencyRecord) error { return f.err }

func (f *failingStore) PutIfAbsent(context.Context, IdempotencyRecord) (bool, error) {
	return false, f.err
}

func (f *failingStore) Ping(context.Context) error { return f.err }
