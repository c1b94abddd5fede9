package store

import (
	"context"
	"sync"
)

// MemStore is an in-process Store for embedded use and tests. It applies the
// same conditional-write discipline as the remote backends.
type MemStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]Record)}
}

func (s *MemStore) Read(_ context.Context, table string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[table]
	if !ok {
		return Record{Version: NoVersion}, ErrNotFound
	}
	data := make([]byte, len(rec.Data))
	copy(data, rec.Data)
	return Record{Data: data, Version: rec.Version}, nil
}

func (s *MemStore) Write(_ context.Context, table string, data []byte, expected Version) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[table]
	if !ok {
		if expected != NoVersion {
			return NoVersion, ErrVersionConflict
		}
		rec := Record{Data: append([]byte(nil), data...), Version: 0}
		s.records[table] = rec
		return rec.Version, nil
	}
	if cur.Version != expected {
		return NoVersion, ErrVersionConflict
	}
	rec := Record{Data: append([]byte(nil), data...), Version: cur.Version + 1}
	s.records[table] = rec
	return rec.Version, nil
}

func (s *MemStore) Delete(_ context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, table)
	return nil
}

func (s *MemStore) Close() error { return nil }
