package sift

import (
	"context"
	"fmt"

	"pkt.systems/pslog"

	"pkt.systems/sift/api"
	"pkt.systems/sift/internal/search"
	"pkt.systems/sift/internal/search/bleveindex"
	"pkt.systems/sift/schema"
	"pkt.systems/sift/store"
)

// SearchStore decorates a primary store's read path with a full-text
// search index. Reads whose filter and sort the index can serve entirely
// are translated and executed there; everything else is handed to the
// primary store unchanged. Callers use it through the same store.Store
// interface as the store it wraps.
type SearchStore struct {
	reg     *schema.Registry
	store   store.Store
	index   *bleveindex.Index
	logger  pslog.Logger
	metrics *search.Metrics

	bootstrapParallelism int
	bootstrapPageSize    int
}

// Option configures SearchStore instances.
type Option func(*options)

type options struct {
	Logger pslog.Logger
	Index  *bleveindex.Index
}

// WithLogger supplies a custom logger.
func WithLogger(l pslog.Logger) Option {
	return func(o *options) {
		o.Logger = l
	}
}

// WithIndex injects a pre-built index, bypassing cfg.IndexPath and
// cfg.IndexInMemory (useful for tests).
func WithIndex(ix *bleveindex.Index) Option {
	return func(o *options) {
		o.Index = ix
	}
}

// New builds the decorator around cfg.Store. When cfg.IndexOnStartup is
// set and the index is empty, New blocks until the index is populated from
// the store.
func New(cfg Config, opts ...Option) (*SearchStore, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}

	cfgCopy := cfg
	if err := cfgCopy.Validate(); err != nil {
		return nil, err
	}
	cfg = cfgCopy

	reg := cfg.Registry
	if reg == nil {
		var err error
		reg, err = schema.LoadFile(cfg.SchemaPath)
		if err != nil {
			return nil, err
		}
	}

	index := o.Index
	created := false
	if index == nil {
		var err error
		if cfg.IndexInMemory {
			index, err = bleveindex.OpenMem(reg, logger.With("sys", "index"))
			created = true
		} else {
			index, created, err = bleveindex.Open(bleveindex.Config{
				Path:     cfg.IndexPath,
				Registry: reg,
				Logger:   logger.With("sys", "index"),
			})
		}
		if err != nil {
			return nil, err
		}
	}

	ss := &SearchStore{
		reg:                  reg,
		store:                cfg.Store,
		index:                index,
		logger:               logger,
		metrics:              search.NewMetrics(logger),
		bootstrapParallelism: cfg.BootstrapParallelism,
		bootstrapPageSize:    cfg.BootstrapPageSize,
	}
	logger.Debug("searchstore.open",
		"entities", len(reg.Entities()),
		"index_created", created,
	)

	if cfg.IndexOnStartup {
		if err := ss.Bootstrap(context.Background()); err != nil {
			index.Close()
			return nil, fmt.Errorf("sift: startup bootstrap: %w", err)
		}
	}
	return ss, nil
}

// BeginRead starts a read transaction. Queries on it route per query;
// point reads always hit the primary store.
func (s *SearchStore) BeginRead(ctx context.Context) (store.Tx, error) {
	tx, err := s.store.BeginRead(ctx)
	if err != nil {
		return nil, err
	}
	return newReadTx(s, tx), nil
}

// Bootstrap populates the index from the primary store when the index is
// empty, and is a no-op otherwise. Safe to call on every startup.
func (s *SearchStore) Bootstrap(ctx context.Context) error {
	return bleveindex.Bootstrap(ctx, s.bootstrapConfig())
}

// Rebuild reindexes every record of every indexed entity, overwriting
// index documents in place. Documents of records deleted from the store
// remain until deleted from the index.
func (s *SearchStore) Rebuild(ctx context.Context) error {
	return bleveindex.Rebuild(ctx, s.bootstrapConfig())
}

func (s *SearchStore) bootstrapConfig() bleveindex.BootstrapConfig {
	return bleveindex.BootstrapConfig{
		Store:       s.store,
		Index:       s.index,
		Parallelism: s.bootstrapParallelism,
		PageSize:    s.bootstrapPageSize,
		Logger:      s.logger.With("sys", "bootstrap"),
	}
}

// IndexRecord writes one record's indexed projections, keeping the index
// current after a store write.
func (s *SearchStore) IndexRecord(ctx context.Context, rec store.Record) error {
	return s.index.IndexRecord(ctx, rec)
}

// DeleteRecord removes a record's document from the index, keeping the
// index current after a store delete.
func (s *SearchStore) DeleteRecord(ctx context.Context, ref store.Ref) error {
	return s.index.DeleteRecord(ctx, ref)
}

// SupportsFiltering always reports partial support: the index can serve
// some filters on the entity, and the primary store covers the rest, so
// callers must not pre-filter on the decorator's behalf.
func (s *SearchStore) SupportsFiltering(entity string) api.FilterSupport {
	return api.FilterSupportPartial
}

// Stats reports index and store size information.
type Stats struct {
	// IndexDocs is the number of documents in the index.
	IndexDocs uint64
	// IndexBytes is the index's on-disk footprint; zero for in-memory
	// indexes.
	IndexBytes int64
	// Entities lists the registry's entity types.
	Entities []string
	// RecordCounts is the per-entity record count, nil when the primary
	// store cannot report it.
	RecordCounts map[string]int64
}

// Stats gathers current index statistics, plus store record counts when
// the store can report them.
func (s *SearchStore) Stats(ctx context.Context) (Stats, error) {
	docs, err := s.index.DocCount()
	if err != nil {
		return Stats{}, err
	}
	size, err := s.index.DiskSize()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		IndexDocs:  docs,
		IndexBytes: size,
		Entities:   s.reg.Entities(),
	}
	if counter, ok := s.store.(store.Counter); ok {
		counts, err := counter.Counts(ctx)
		if err != nil {
			return Stats{}, err
		}
		stats.RecordCounts = counts
	}
	return stats, nil
}

// Registry exposes the capability registry the decorator routes with.
func (s *SearchStore) Registry() *schema.Registry {
	return s.reg
}

// Close releases the index. The primary store stays open.
func (s *SearchStore) Close() error {
	return s.index.Close()
}
