package bleveindex

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"pkt.systems/pslog"
	"pkt.systems/sift/api"
	"pkt.systems/sift/store"
)

// Bootstrap defaults.
const (
	DefaultBootstrapParallelism = 4
	DefaultBootstrapPageSize    = 500
)

// BootstrapConfig wires the collaborators for startup index population.
type BootstrapConfig struct {
	Store store.Store
	Index *Index
	// Parallelism caps concurrent per-entity indexing goroutines.
	// Defaults to DefaultBootstrapParallelism.
	Parallelism int
	// PageSize is the primary-store read window per batch. Defaults to
	// DefaultBootstrapPageSize.
	PageSize int
	Logger   pslog.Logger
}

func (cfg *BootstrapConfig) normalize() error {
	if cfg.Store == nil {
		return errors.New("bleveindex: bootstrap store required")
	}
	if cfg.Index == nil {
		return errors.New("bleveindex: bootstrap index required")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultBootstrapParallelism
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultBootstrapPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = pslog.NoopLogger()
	}
	return nil
}

// Bootstrap populates the index from the primary store once, and only when
// the index is empty; a populated index is left untouched to avoid
// destructive duplication. Failures abort the whole build and are fatal to
// startup. The read path never assumes this ran.
func Bootstrap(ctx context.Context, cfg BootstrapConfig) error {
	if err := cfg.normalize(); err != nil {
		return err
	}
	count, err := cfg.Index.DocCount()
	if err != nil {
		return err
	}
	if count > 0 {
		cfg.Logger.Info("bootstrap.skip", "docs", count)
		return nil
	}
	return reindexAll(ctx, cfg)
}

// Rebuild reindexes every record of every indexed entity regardless of the
// emptiness precondition, overwriting documents in place by reference.
func Rebuild(ctx context.Context, cfg BootstrapConfig) error {
	if err := cfg.normalize(); err != nil {
		return err
	}
	return reindexAll(ctx, cfg)
}

func reindexAll(ctx context.Context, cfg BootstrapConfig) error {
	entities := make([]string, 0)
	for _, entity := range cfg.Index.reg.Entities() {
		if cfg.Index.reg.HasIndexedFields(entity) {
			entities = append(entities, entity)
		}
	}
	if len(entities) == 0 {
		cfg.Logger.Info("bootstrap.noop", "reason", "no indexed entities")
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallelism)
	for _, entity := range entities {
		g.Go(func() error {
			n, err := indexEntity(ctx, cfg, entity)
			if err != nil {
				return fmt.Errorf("bleveindex: bootstrap %s: %w", entity, err)
			}
			cfg.Logger.Info("bootstrap.entity", "entity", entity, "docs", n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	cfg.Logger.Info("bootstrap.complete", "entities", len(entities))
	return nil
}

// indexEntity pages through the entity's records and indexes them in
// batches. The unfiltered, unsorted read falls back to the store's
// deterministic identity order, which keeps pages disjoint.
func indexEntity(ctx context.Context, cfg BootstrapConfig, entity string) (int64, error) {
	tx, err := cfg.Store.BeginRead(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Close()

	var indexed int64
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		res, err := tx.LoadObjects(ctx, store.Query{
			Entity: entity,
			Page:   &api.Page{Offset: offset, Limit: cfg.PageSize},
		})
		if err != nil {
			return indexed, err
		}
		if len(res.Records) == 0 {
			return indexed, nil
		}
		if err := cfg.Index.IndexBatch(ctx, res.Records); err != nil {
			return indexed, err
		}
		indexed += int64(len(res.Records))
		if len(res.Records) < cfg.PageSize {
			return indexed, nil
		}
		offset += cfg.PageSize
	}
}
