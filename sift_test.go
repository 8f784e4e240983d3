package sift

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"pkt.systems/pslog"

	"pkt.systems/sift/api"
	"pkt.systems/sift/schema"
	"pkt.systems/sift/store"
	"pkt.systems/sift/store/memstore"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Build(map[string]schema.Entity{
		"article": {Fields: map[string]schema.Field{
			"title":  {Type: schema.FieldText, Indexed: true, Sortable: true},
			"status": {Type: schema.FieldKeyword, Indexed: true, Sortable: true},
			"age":    {Type: schema.FieldNumber, Indexed: true, Sortable: true},
			"notes":  {Type: schema.FieldKeyword},
		}},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

// spyStore wraps a memstore and records which calls reach the primary
// store, so tests can tell routing from delegation.
type spyStore struct {
	inner *memstore.Store

	mu    sync.Mutex
	loads []store.Query
	gets  int
}

func newSpyStore() *spyStore {
	return &spyStore{inner: memstore.New()}
}

func (s *spyStore) BeginRead(ctx context.Context) (store.Tx, error) {
	tx, err := s.inner.BeginRead(ctx)
	if err != nil {
		return nil, err
	}
	return &spyTx{inner: tx, spy: s}, nil
}

func (s *spyStore) Close() error { return s.inner.Close() }

func (s *spyStore) Counts(ctx context.Context) (map[string]int64, error) {
	return s.inner.Counts(ctx)
}

func (s *spyStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = nil
	s.gets = 0
}

func (s *spyStore) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loads)
}

func (s *spyStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func (s *spyStore) lastLoad(t *testing.T) store.Query {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.loads) == 0 {
		t.Fatalf("expected the primary store to have been queried")
	}
	return s.loads[len(s.loads)-1]
}

type spyTx struct {
	inner store.Tx
	spy   *spyStore
}

func (t *spyTx) LoadObjects(ctx context.Context, q store.Query) (store.Result, error) {
	t.spy.mu.Lock()
	t.spy.loads = append(t.spy.loads, q)
	t.spy.mu.Unlock()
	return t.inner.LoadObjects(ctx, q)
}

func (t *spyTx) Get(ctx context.Context, entity, id string) (store.Record, error) {
	t.spy.mu.Lock()
	t.spy.gets++
	t.spy.mu.Unlock()
	return t.inner.Get(ctx, entity, id)
}

func (t *spyTx) Close() error { return t.inner.Close() }

// newTestStore builds a bootstrapped decorator over four seeded articles
// and resets the spy counters so tests observe only their own reads.
func newTestStore(t *testing.T) (*SearchStore, *spyStore) {
	t.Helper()
	spy := newSpyStore()
	spy.inner.Seed(
		store.Record{Entity: "article", ID: "a1", Doc: map[string]any{"title": "go concurrency", "status": "published", "age": 5, "author": map[string]any{"name": "kim"}}},
		store.Record{Entity: "article", ID: "a2", Doc: map[string]any{"title": "go generics", "status": "draft", "age": 12}},
		store.Record{Entity: "article", ID: "a3", Doc: map[string]any{"title": "rust borrowing", "status": "published", "age": 30}},
		store.Record{Entity: "article", ID: "a4", Doc: map[string]any{"title": "zig comptime", "status": "published", "age": 21}},
		store.Record{Entity: "author", ID: "u1", Doc: map[string]any{"name": "kim"}},
	)
	ss, err := New(Config{
		Store:          spy,
		Registry:       testRegistry(t),
		IndexInMemory:  true,
		IndexOnStartup: true,
	}, WithLogger(pslog.NewStructured(io.Discard)))
	if err != nil {
		t.Fatalf("new search store: %v", err)
	}
	t.Cleanup(func() { ss.Close() })
	spy.reset()
	return ss, spy
}

func load(t *testing.T, ss *SearchStore, q store.Query) store.Result {
	t.Helper()
	tx, err := ss.BeginRead(context.Background())
	if err != nil {
		t.Fatalf("begin read: %v", err)
	}
	defer tx.Close()
	res, err := tx.LoadObjects(context.Background(), q)
	if err != nil {
		t.Fatalf("load objects: %v", err)
	}
	return res
}

func recordIDs(res store.Result) []string {
	ids := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		ids = append(ids, rec.ID)
	}
	return ids
}

func TestEligibleQueryRoutesToIndex(t *testing.T) {
	ss, spy := newTestStore(t)
	res := load(t, ss, store.Query{
		Entity: "article",
		Filter: api.And(
			api.Eq("status", "published"),
			api.Pred(api.ParsePath("age"), api.OpGT, 10),
		),
		Sort: api.Sort{}.Desc("age"),
		Page: &api.Page{Limit: 10, WantTotal: true},
	})

	ids := recordIDs(res)
	if len(ids) != 2 || ids[0] != "a3" || ids[1] != "a4" {
		t.Fatalf("unexpected records: %v", ids)
	}
	if res.Total == nil || *res.Total != 2 {
		t.Fatalf("expected total 2, got %v", res.Total)
	}
	if spy.loadCount() != 0 {
		t.Fatalf("routed query must not reach the primary store's LoadObjects")
	}
	if spy.getCount() != 2 {
		t.Fatalf("expected 2 hydrating point reads, got %d", spy.getCount())
	}
}

func TestIneligibleFilterDelegatesUnchanged(t *testing.T) {
	ss, spy := newTestStore(t)
	filter := api.Eq("author.name", "kim")
	page := &api.Page{Limit: 10}
	q := store.Query{Entity: "article", Filter: filter, Page: page}

	res := load(t, ss, q)
	ids := recordIDs(res)
	if len(ids) != 1 || ids[0] != "a1" {
		t.Fatalf("unexpected records: %v", ids)
	}
	if spy.loadCount() != 1 {
		t.Fatalf("expected exactly one delegated query, got %d", spy.loadCount())
	}
	got := spy.lastLoad(t)
	if got.Filter != filter || got.Page != page || got.Entity != "article" {
		t.Fatalf("delegated query was altered: %+v", got)
	}
}

func TestUnindexedFieldDelegates(t *testing.T) {
	ss, spy := newTestStore(t)
	load(t, ss, store.Query{
		Entity: "article",
		Filter: api.Eq("notes", "x"),
	})
	if spy.loadCount() != 1 {
		t.Fatalf("expected delegation for the unindexed field")
	}
}

func TestOneBadLeafDisqualifiesWholeFilter(t *testing.T) {
	ss, spy := newTestStore(t)
	load(t, ss, store.Query{
		Entity: "article",
		Filter: api.And(
			api.Eq("status", "published"),
			api.Eq("notes", "x"),
		),
	})
	if spy.loadCount() != 1 {
		t.Fatalf("a single ineligible leaf must delegate the whole query")
	}
}

func TestNoFilterDelegates(t *testing.T) {
	ss, spy := newTestStore(t)
	res := load(t, ss, store.Query{
		Entity: "article",
		Sort:   api.Sort{}.Asc("age"),
		Page:   &api.Page{Limit: 2},
	})
	ids := recordIDs(res)
	if len(ids) != 2 || ids[0] != "a1" || ids[1] != "a2" {
		t.Fatalf("unexpected records: %v", ids)
	}
	if spy.loadCount() != 1 {
		t.Fatalf("filterless query must delegate, got %d delegated calls", spy.loadCount())
	}
}

func TestIneligibleSortDelegates(t *testing.T) {
	ss, spy := newTestStore(t)
	load(t, ss, store.Query{
		Entity: "article",
		Filter: api.Eq("status", "published"),
		Sort:   api.Sort{}.Asc("notes"),
	})
	if spy.loadCount() != 1 {
		t.Fatalf("unsortable key must delegate the whole query")
	}
}

func TestTranslationFaultSurfaces(t *testing.T) {
	ss, spy := newTestStore(t)
	tx, err := ss.BeginRead(context.Background())
	if err != nil {
		t.Fatalf("begin read: %v", err)
	}
	defer tx.Close()

	// status is indexed and the path is depth-1, so the query is
	// eligible; is-null has no index mapping and must fail translation.
	_, err = tx.LoadObjects(context.Background(), store.Query{
		Entity: "article",
		Filter: api.Pred(api.ParsePath("status"), api.OpIsNull),
	})
	if err == nil {
		t.Fatalf("expected translation fault")
	}
	var terr *api.TranslationError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TranslationError, got %T: %v", err, err)
	}
	if terr.Op != api.OpIsNull {
		t.Fatalf("unexpected fault: %+v", terr)
	}
	if spy.loadCount() != 0 {
		t.Fatalf("translation faults must surface, not fall back to the store")
	}
}

func TestHydrateSkipsVanishedRecords(t *testing.T) {
	ss, spy := newTestStore(t)
	// Remove a4 from the store only; its index document stays behind.
	spy.inner.Delete("article", "a4")

	res := load(t, ss, store.Query{
		Entity: "article",
		Filter: api.Eq("status", "published"),
		Sort:   api.Sort{}.Asc("age"),
		Page:   &api.Page{Limit: 10, WantTotal: true},
	})
	ids := recordIDs(res)
	if len(ids) != 2 || ids[0] != "a1" || ids[1] != "a3" {
		t.Fatalf("vanished record should be skipped, got %v", ids)
	}
	// The total still reports the index's match count.
	if res.Total == nil || *res.Total != 3 {
		t.Fatalf("expected index total 3, got %v", res.Total)
	}
}

func TestTotalIndependentOfWindow(t *testing.T) {
	ss, _ := newTestStore(t)
	res := load(t, ss, store.Query{
		Entity: "article",
		Filter: api.Eq("status", "published"),
		Page:   &api.Page{Limit: 1, WantTotal: true},
	})
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 windowed record, got %d", len(res.Records))
	}
	if res.Total == nil || *res.Total != 3 {
		t.Fatalf("expected total 3, got %v", res.Total)
	}
}

func TestIndexRecordAndDeleteRecordKeepIndexCurrent(t *testing.T) {
	ss, spy := newTestStore(t)
	ctx := context.Background()

	rec := spy.inner.Put(store.Record{
		Entity: "article", ID: "a5",
		Doc: map[string]any{"title": "go modules", "status": "published", "age": 40},
	})
	if err := ss.IndexRecord(ctx, rec); err != nil {
		t.Fatalf("index record: %v", err)
	}
	res := load(t, ss, store.Query{
		Entity: "article",
		Filter: api.Eq("status", "published"),
		Sort:   api.Sort{}.Desc("age"),
		Page:   &api.Page{Limit: 1},
	})
	if ids := recordIDs(res); len(ids) != 1 || ids[0] != "a5" {
		t.Fatalf("expected the freshly indexed record first, got %v", ids)
	}

	spy.inner.Delete("article", "a5")
	if err := ss.DeleteRecord(ctx, store.Ref{Entity: "article", ID: "a5"}); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	res = load(t, ss, store.Query{
		Entity: "article",
		Filter: api.Eq("status", "published"),
		Page:   &api.Page{WantTotal: true},
	})
	if res.Total == nil || *res.Total != 3 {
		t.Fatalf("expected total back to 3 after delete, got %v", res.Total)
	}
}

func TestGetPassesThrough(t *testing.T) {
	ss, spy := newTestStore(t)
	tx, err := ss.BeginRead(context.Background())
	if err != nil {
		t.Fatalf("begin read: %v", err)
	}
	defer tx.Close()
	rec, err := tx.Get(context.Background(), "article", "a2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Doc["status"] != "draft" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if spy.getCount() != 1 {
		t.Fatalf("expected the point read to reach the store")
	}
	if _, err := tx.Get(context.Background(), "article", "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSupportsFilteringIsPartial(t *testing.T) {
	ss, _ := newTestStore(t)
	if got := ss.SupportsFiltering("article"); got != api.FilterSupportPartial {
		t.Fatalf("expected partial support, got %s", got)
	}
	if got := ss.SupportsFiltering("unknown"); got != api.FilterSupportPartial {
		t.Fatalf("expected partial support for unknown entities, got %s", got)
	}
}

func TestStats(t *testing.T) {
	ss, _ := newTestStore(t)
	stats, err := ss.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.IndexDocs != 4 {
		t.Fatalf("expected 4 index docs, got %d", stats.IndexDocs)
	}
	if stats.IndexBytes != 0 {
		t.Fatalf("in-memory index should report zero bytes, got %d", stats.IndexBytes)
	}
	if len(stats.Entities) != 1 || stats.Entities[0] != "article" {
		t.Fatalf("unexpected entities: %v", stats.Entities)
	}
	if stats.RecordCounts["article"] != 4 || stats.RecordCounts["author"] != 1 {
		t.Fatalf("unexpected record counts: %v", stats.RecordCounts)
	}
}

func TestRebuildRefreshesStaleDocuments(t *testing.T) {
	ss, spy := newTestStore(t)
	ctx := context.Background()

	spy.inner.Put(store.Record{
		Entity: "article", ID: "a2",
		Doc: map[string]any{"title": "go generics", "status": "published", "age": 12},
	})
	// Bootstrap skips a populated index; Rebuild must not.
	if err := ss.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	res := load(t, ss, store.Query{
		Entity: "article",
		Filter: api.Eq("status", "published"),
		Page:   &api.Page{WantTotal: true},
	})
	if *res.Total != 3 {
		t.Fatalf("expected stale total 3 before rebuild, got %d", *res.Total)
	}

	if err := ss.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	res = load(t, ss, store.Query{
		Entity: "article",
		Filter: api.Eq("status", "published"),
		Page:   &api.Page{WantTotal: true},
	})
	if *res.Total != 4 {
		t.Fatalf("expected total 4 after rebuild, got %d", *res.Total)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without a store")
	}
	if _, err := New(Config{Store: newSpyStore()}); err == nil {
		t.Fatalf("expected error without a registry or schema path")
	}
	if _, err := New(Config{Store: newSpyStore(), Registry: testRegistry(t)}); err == nil {
		t.Fatalf("expected error without an index location")
	}
}
