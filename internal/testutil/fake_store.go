package testutil

import (
	"context"
	"sync"

	weather "github.com/eugener/zephyr/internal"
)

// FakeStore is an in-memory implementation of storage.Store for testing.
type FakeStore struct {
	mu      sync.RWMutex
	records []weather.LookupRecord

	// PingErr, when set, is returned by Ping to simulate an unready store.
	PingErr error
	// InsertErr, when set, is returned by InsertLookups.
	InsertErr error
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

// InsertLookups appends records, or fails with InsertErr.
func (s *FakeStore) InsertLookups(_ context.Context, records []weather.LookupRecord) error {
	if s.InsertErr != nil {
		return s.InsertErr
	}
	s.mu.Lock()
	s.records = append(s.records, records...)
	s.mu.Unlock()
	return nil
}

// QueryLookups returns all stored records; filtering is not simulated.
func (s *FakeStore) QueryLookups(_ context.Context, f weather.LookupFilter) ([]weather.LookupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]weather.LookupRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// CountLookups returns the number of stored records.
func (s *FakeStore) CountLookups(_ context.Context, f weather.LookupFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Ping returns PingErr.
func (s *FakeStore) Ping(_ context.Context) error { return s.PingErr }

// Close is a no-op.
func (s *FakeStore) Close() error { return nil }

// Records returns a snapshot of stored records.
func (s *FakeStore) Records() []weather.LookupRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]weather.LookupRecord, len(s.records))
	copy(out, s.records)
	return out
}
