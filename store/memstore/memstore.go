// Package memstore is an in-memory primary store with full filter, sort,
// and pagination semantics. It backs tests and development setups, and its
// observable behavior matches sqlstore and the index path so callers cannot
// tell which engine served a read.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"pkt.systems/sift/api"
	"pkt.systems/sift/store"
)

// Store holds records in memory, keyed by entity and ID. Safe for
// concurrent use; reads take a point-in-time snapshot of the matching
// entity's records.
type Store struct {
	mu      sync.RWMutex
	records map[string]map[string]store.Record
	closed  bool
}

// New returns an empty store.
func New() *Store {
	return &Store{records: make(map[string]map[string]store.Record)}
}

// Put inserts or replaces a record, assigning a fresh ID when the record
// has none. The stored record is returned.
func (s *Store) Put(rec store.Record) store.Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.records[rec.Entity]
	if !ok {
		byID = make(map[string]store.Record)
		s.records[rec.Entity] = byID
	}
	byID[rec.ID] = rec
	return rec
}

// Seed puts every record, for test and dev fixtures.
func (s *Store) Seed(recs ...store.Record) {
	for _, rec := range recs {
		s.Put(rec)
	}
}

// Delete removes a record if present.
func (s *Store) Delete(entity, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if byID, ok := s.records[entity]; ok {
		delete(byID, id)
	}
}

// BeginRead starts a read transaction.
func (s *Store) BeginRead(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, store.ErrClosed
	}
	return &tx{store: s}, nil
}

// Counts reports the number of stored records per entity.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64, len(s.records))
	for entity, byID := range s.records {
		counts[entity] = int64(len(byID))
	}
	return counts, nil
}

// Close marks the store closed. Outstanding transactions keep working on
// the data they can still reach.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type tx struct {
	store *Store
}

func (t *tx) Close() error { return nil }

func (t *tx) Get(ctx context.Context, entity, id string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	byID, ok := t.store.records[entity]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	rec, ok := byID[id]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return rec, nil
}

func (t *tx) LoadObjects(ctx context.Context, q store.Query) (store.Result, error) {
	if err := ctx.Err(); err != nil {
		return store.Result{}, err
	}
	matched := t.snapshot(q.Entity, q.Filter)
	orderRecords(matched, q.Sort)

	total := int64(len(matched))
	offset, limit, bounded := q.Page.Window()
	if offset >= len(matched) {
		matched = nil
	} else {
		matched = matched[offset:]
	}
	if bounded && limit < len(matched) {
		matched = matched[:limit]
	}

	result := store.Result{Records: append([]store.Record(nil), matched...)}
	if q.Page != nil && q.Page.WantTotal {
		result.Total = &total
	}
	return result, nil
}

// snapshot collects the entity's matching records in identity order, the
// deterministic base order when no sort is requested.
func (t *tx) snapshot(entity string, filter *api.Filter) []store.Record {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	byID := t.store.records[entity]
	out := make([]store.Record, 0, len(byID))
	for _, rec := range byID {
		if filter == nil || matchFilter(rec.Doc, filter) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// orderRecords applies a stable multi-key sort in spec order on top of the
// identity base order.
func orderRecords(recs []store.Record, spec api.Sort) {
	if len(spec) == 0 {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, key := range spec {
			a, _ := valueAtPath(recs[i].Doc, key.Path)
			b, _ := valueAtPath(recs[j].Doc, key.Path)
			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			if key.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
