package storage

import (
	"context"
	"maps"
	"sync"
	"time"
)

var (
	_ IdempotencyStore  = (*MemoryIdempotencyStore)(nil)
	_ ConditionalPutter = (*MemoryIdempotencyStore)(nil)
	_ ExpirySweeper     = (*MemoryIdempotencyStore)(nil)
	_ RecordLister      = (*MemoryIdempotencyStore)(nil)
)

const DefaultMemoryMaxEntries = 10_000

// MemoryIdempotencyStore holds records in process memory. Every write first
// drops expired records, then evicts the oldest records while at capacity.
// PutIfAbsent is atomic only within this process.
type MemoryIdempotencyStore struct {
	mu         sync.Mutex
	records    map[string]IdempotencyRecord
	maxEntries int
	now        func() time.Time
}

type MemoryOption func(*MemoryIdempotencyStore)

func WithMaxEntries(n int) MemoryOption {
	return func(m *MemoryIdempotencyStore) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryIdempotencyStore) { m.now = now }
}

func NewMemoryIdempotencyStore(opts ...MemoryOption) *MemoryIdempotencyStore {
	m := &MemoryIdempotencyStore{
		records:    make(map[string]IdempotencyRecord),
		maxEntries: DefaultMemoryMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryIdempotencyStore) Source() string { return SourceMemory }

func (m *MemoryIdempotencyStore) Get(_ context.Context, eventID string) (IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[eventID]
	if !ok || rec.Expired(m.now()) {
		return IdempotencyRecord{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *MemoryIdempotencyStore) Put(_ context.Context, rec IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.records[rec.EventID]; ok && !existing.replaceable(now) {
		return ErrRecordFinal
	}
	m.write(rec, now)
	return nil
}

func (m *MemoryIdempotencyStore) PutIfAbsent(_ context.Context, rec IdempotencyRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.records[rec.EventID]; ok && !existing.Expired(now) {
		return false, nil
	}
	m.write(rec, now)
	return true, nil
}

func (m *MemoryIdempotencyStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweep(before), nil
}

func (m *MemoryIdempotencyStore) ListByStatus(_ context.Context, status IdempotencyStatus, limit int) ([]IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []IdempotencyRecord
	for _, rec := range m.records {
		if rec.Status != status || rec.Expired(now) {
			continue
		}
		out = append(out, cloneRecord(rec))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of records held, including expired ones not yet swept.
func (m *MemoryIdempotencyStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MemoryIdempotencyStore) Ping(context.Context) error { return nil }

func (m *MemoryIdempotencyStore) ActiveSource(context.Context) string { return SourceMemory }

func (m *MemoryIdempotencyStore) Close() error { return nil }

// write must be called with mu held.
func (m *MemoryIdempotencyStore) write(rec IdempotencyRecord, now time.Time) {
	m.sweep(now)
	if _, ok := m.records[rec.EventID]; !ok {
		for len(m.records) >= m.maxEntries {
			m.evictOldest()
		}
	}
	m.records[rec.EventID] = cloneRecord(rec)
}

func (m *MemoryIdempotencyStore) sweep(before time.Time) int64 {
	var n int64
	for id, rec := range m.records {
		if rec.Expired(before) {
			delete(m.records, id)
			n++
		}
	}
	return n
}

func (m *MemoryIdempotencyStore) evictOldest() {
	var (
		oldestID string
		oldestAt time.Time
		found    bool
	)
	for id, rec := range m.records {
		if !found || rec.ProcessedAt.Before(oldestAt) {
			oldestID, oldestAt, found = id, rec.ProcessedAt, true
		}
	}
	if found {
		delete(m.records, oldestID)
	}
}

func cloneRecord(rec IdempotencyRecord) IdempotencyRecord {
	rec.Metadata = maps.Clone(rec.Metadata)
	return rec
}
