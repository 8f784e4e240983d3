package sift

import (
	"context"
	"errors"
	"time"

	"github.com/rs/xid"

	"pkt.systems/sift/api"
	"pkt.systems/sift/internal/search"
	"pkt.systems/sift/internal/search/bleveindex"
	"pkt.systems/sift/store"
)

// readTx routes each LoadObjects through the dispatch decision. Point
// reads and lifecycle pass straight through to the primary store's
// transaction.
type readTx struct {
	ss *SearchStore
	tx store.Tx
	id string
}

func newReadTx(ss *SearchStore, tx store.Tx) *readTx {
	return &readTx{ss: ss, tx: tx, id: xid.New().String()}
}

// LoadObjects dispatches on three branches: no filter delegates untouched,
// an ineligible filter or sort delegates untouched, and an eligible query
// is translated and executed on the index. A failed translation of an
// eligible query is an error, never a silent fallback.
func (t *readTx) LoadObjects(ctx context.Context, q store.Query) (store.Result, error) {
	start := time.Now()
	decision := search.Decide(t.ss.reg, q.Entity, q.Filter, q.Sort)
	t.ss.metrics.RecordDecision(ctx, q.Entity, decision)

	if !decision.Route {
		t.ss.logger.Debug("query.delegated",
			"tx", t.id,
			"entity", q.Entity,
			"reason", decision.Reason,
		)
		res, err := t.tx.LoadObjects(ctx, q)
		t.ss.metrics.RecordDuration(ctx, q.Entity, "store", time.Since(start))
		return res, err
	}

	ires, err := t.ss.index.Query(ctx, bleveindex.Request{
		Entity: q.Entity,
		Filter: q.Filter,
		Sort:   q.Sort,
		Page:   q.Page,
	})
	if err != nil {
		var terr *api.TranslationError
		if errors.As(err, &terr) {
			t.ss.metrics.RecordTranslationError(ctx, q.Entity)
			t.ss.logger.Warn("query.translation_failed",
				"tx", t.id,
				"entity", q.Entity,
				"error", err,
			)
		}
		return store.Result{}, err
	}

	records, misses, err := t.hydrate(ctx, ires.Refs)
	if err != nil {
		return store.Result{}, err
	}
	t.ss.metrics.RecordHydrateMisses(ctx, q.Entity, int64(misses))
	t.ss.logger.Debug("query.routed",
		"tx", t.id,
		"entity", q.Entity,
		"hits", len(ires.Refs),
		"misses", misses,
	)
	t.ss.metrics.RecordDuration(ctx, q.Entity, "index", time.Since(start))
	return store.Result{Records: records, Total: ires.Total}, nil
}

// hydrate projects index references back to store records through the
// same read transaction. References whose record has vanished are
// skipped: the index may trail deletes.
func (t *readTx) hydrate(ctx context.Context, refs []store.Ref) ([]store.Record, int, error) {
	records := make([]store.Record, 0, len(refs))
	misses := 0
	for _, ref := range refs {
		rec, err := t.tx.Get(ctx, ref.Entity, ref.ID)
		if errors.Is(err, store.ErrNotFound) {
			misses++
			t.ss.logger.Debug("query.hydrate_miss", "tx", t.id, "ref", ref.String())
			continue
		}
		if err != nil {
			return nil, misses, err
		}
		records = append(records, rec)
	}
	return records, misses, nil
}

func (t *readTx) Get(ctx context.Context, entity, id string) (store.Record, error) {
	return t.tx.Get(ctx, entity, id)
}

func (t *readTx) Close() error {
	return t.tx.Close()
}
