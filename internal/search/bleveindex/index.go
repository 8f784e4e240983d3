package bleveindex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"pkt.systems/pslog"
	"pkt.systems/sift/api"
	"pkt.systems/sift/schema"
	"pkt.systems/sift/store"
)

// Config describes how to open an index.
type Config struct {
	// Path is the on-disk index location. Created with the registry
	// mapping when it does not exist yet.
	Path string
	// Registry supplies the mapping and alias resolution.
	Registry *schema.Registry
	// Logger defaults to a noop logger.
	Logger pslog.Logger
}

// Request is one translated-and-executed read against the index.
type Request struct {
	Entity string
	Filter *api.Filter
	Sort   api.Sort
	Page   *api.Page
}

// Result carries entity references in result order plus the optional total
// match count. Refs is never nil on success; zero matches yield an empty
// slice.
type Result struct {
	Refs  []store.Ref
	Total *int64
}

// Index wraps a bleve index scoped to one registry. It is safe for
// concurrent readers; writes (IndexRecord, batches) serialize inside bleve.
type Index struct {
	idx    bleve.Index
	reg    *schema.Registry
	logger pslog.Logger
	path   string
}

// Open opens the index at cfg.Path, creating it with the registry mapping
// when the path does not exist. The second return reports whether the index
// was freshly created, which bootstrap uses as its emptiness precondition.
func Open(cfg Config) (*Index, bool, error) {
	if cfg.Registry == nil {
		return nil, false, errors.New("bleveindex: registry required")
	}
	if cfg.Path == "" {
		return nil, false, errors.New("bleveindex: path required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	created := false
	idx, err := bleve.Open(cfg.Path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(cfg.Path, BuildMapping(cfg.Registry))
		created = true
	}
	if err != nil {
		return nil, false, fmt.Errorf("bleveindex: open %s: %w", cfg.Path, err)
	}
	return &Index{idx: idx, reg: cfg.Registry, logger: logger, path: cfg.Path}, created, nil
}

// OpenMem builds an in-memory index, used by tests and dev setups.
func OpenMem(reg *schema.Registry, logger pslog.Logger) (*Index, error) {
	if reg == nil {
		return nil, errors.New("bleveindex: registry required")
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	idx, err := bleve.NewMemOnly(BuildMapping(reg))
	if err != nil {
		return nil, fmt.Errorf("bleveindex: open in-memory index: %w", err)
	}
	return &Index{idx: idx, reg: reg, logger: logger}, nil
}

// Close releases the underlying index.
func (ix *Index) Close() error {
	return ix.idx.Close()
}

// Query translates the request and executes it: ordering first, then the
// pagination window, projecting each hit down to its entity reference.
// Totals, when requested, report the engine's full match count for the
// query, independent of the window.
func (ix *Index) Query(ctx context.Context, req Request) (Result, error) {
	q, err := ix.buildQuery(req)
	if err != nil {
		return Result{}, err
	}
	sortBy := TranslateSort(ix.reg, req.Entity, req.Sort)

	offset, limit, bounded := req.Page.Window()
	var total int64
	if !bounded {
		// Unbounded fetches size themselves with a count-only pass first.
		count, err := ix.count(ctx, q)
		if err != nil {
			return Result{}, err
		}
		total = count
		limit = int(count) - offset
		if limit <= 0 {
			return ix.finish(req, []store.Ref{}, total), nil
		}
	}

	sreq := bleve.NewSearchRequestOptions(q, limit, offset, false)
	if len(sortBy) > 0 {
		sreq.SortBy(sortBy)
	}
	res, err := ix.idx.SearchInContext(ctx, sreq)
	if err != nil {
		return Result{}, fmt.Errorf("bleveindex: search %s: %w", req.Entity, err)
	}
	if bounded {
		total = int64(res.Total)
	}

	refs := make([]store.Ref, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ref, err := store.ParseRef(hit.ID)
		if err != nil {
			return Result{}, fmt.Errorf("bleveindex: hit %q: %w", hit.ID, err)
		}
		refs = append(refs, ref)
	}
	ix.logger.Debug("index.query",
		"entity", req.Entity,
		"hits", len(refs),
		"total", total,
		"offset", offset,
		"limit", limit,
	)
	return ix.finish(req, refs, total), nil
}

func (ix *Index) finish(req Request, refs []store.Ref, total int64) Result {
	result := Result{Refs: refs}
	if req.Page != nil && req.Page.WantTotal {
		result.Total = &total
	}
	return result
}

// buildQuery conjoins the entity type term with the translated filter so
// one shared index can hold every entity.
func (ix *Index) buildQuery(req Request) (query.Query, error) {
	typeTerm := query.NewTermQuery(req.Entity)
	typeTerm.SetField(typeField)
	if req.Filter == nil {
		return typeTerm, nil
	}
	translated, err := TranslateFilter(ix.reg, req.Entity, req.Filter)
	if err != nil {
		return nil, err
	}
	return query.NewConjunctionQuery([]query.Query{typeTerm, translated}), nil
}

func (ix *Index) count(ctx context.Context, q query.Query) (int64, error) {
	creq := bleve.NewSearchRequestOptions(q, 0, 0, false)
	res, err := ix.idx.SearchInContext(ctx, creq)
	if err != nil {
		return 0, fmt.Errorf("bleveindex: count: %w", err)
	}
	return int64(res.Total), nil
}

// IndexRecord writes one record's indexed projections. The document ID is
// the record's entity/id reference; reindexing the same record overwrites
// in place.
func (ix *Index) IndexRecord(ctx context.Context, rec store.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := ix.projectDoc(rec)
	if doc == nil {
		return nil
	}
	ref := store.Ref{Entity: rec.Entity, ID: rec.ID}
	if err := ix.idx.Index(ref.String(), doc); err != nil {
		return fmt.Errorf("bleveindex: index %s: %w", ref, err)
	}
	return nil
}

// DeleteRecord removes a record's document from the index.
func (ix *Index) DeleteRecord(ctx context.Context, ref store.Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ix.idx.Delete(ref.String()); err != nil {
		return fmt.Errorf("bleveindex: delete %s: %w", ref, err)
	}
	return nil
}

// IndexBatch writes many records in one bleve batch. Records of entities
// with no indexed fields are skipped.
func (ix *Index) IndexBatch(ctx context.Context, recs []store.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := ix.idx.NewBatch()
	for _, rec := range recs {
		doc := ix.projectDoc(rec)
		if doc == nil {
			continue
		}
		ref := store.Ref{Entity: rec.Entity, ID: rec.ID}
		if err := batch.Index(ref.String(), doc); err != nil {
			return fmt.Errorf("bleveindex: batch %s: %w", ref, err)
		}
	}
	if err := ix.idx.Batch(batch); err != nil {
		return fmt.Errorf("bleveindex: apply batch: %w", err)
	}
	return nil
}

// projectDoc builds the index document for a record: the type tag plus
// every indexed and sortable projection the registry declares. Returns nil
// for entities with nothing to index.
func (ix *Index) projectDoc(rec store.Record) map[string]any {
	if !ix.reg.HasIndexedFields(rec.Entity) {
		return nil
	}
	doc := map[string]any{typeField: rec.Entity}
	for _, name := range ix.reg.Fields(rec.Entity) {
		value, present := rec.Doc[name]
		if !present || value == nil {
			continue
		}
		field, _ := ix.reg.Field(rec.Entity, name)
		if field.Indexed {
			alias := name
			if field.Alias != "" {
				alias = field.Alias
			}
			doc[alias] = value
		}
		for _, sub := range field.SubFields {
			if sub.Indexed {
				doc[sub.Name] = value
			}
		}
		if field.Sortable {
			doc[ix.reg.SortAlias(rec.Entity, name)] = value
		}
	}
	return doc
}

// DocCount reports the number of documents in the index.
func (ix *Index) DocCount() (uint64, error) {
	count, err := ix.idx.DocCount()
	if err != nil {
		return 0, fmt.Errorf("bleveindex: doc count: %w", err)
	}
	return count, nil
}

// DiskSize sums the on-disk footprint of the index directory. In-memory
// indexes report zero.
func (ix *Index) DiskSize() (int64, error) {
	if ix.path == "" {
		return 0, nil
	}
	var size int64
	err := filepath.WalkDir(ix.path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bleveindex: disk size: %w", err)
	}
	return size, nil
}
