// Package store defines the primary record store contract sift decorates:
// read transactions over JSON-shaped records with filter, sort, and
// pagination semantics. Implementations (memstore, sqlstore) evaluate the
// full api.Filter tree themselves; the decorator delegates here whenever
// the search index cannot serve a query.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pkt.systems/sift/api"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrUnknownEntity indicates the entity type is not known to the store.
	ErrUnknownEntity = errors.New("store: unknown entity")
	// ErrClosed indicates the store or transaction is no longer usable.
	ErrClosed = errors.New("store: closed")
)

// Record is one stored entity instance: its type, identity, and document
// body. Doc values are JSON-shaped (string, float64, bool, nil, nested
// maps/slices).
type Record struct {
	Entity string
	ID     string
	Doc    map[string]any
}

// Ref identifies a record without carrying its body. The string form
// "entity/id" doubles as the search index document ID.
type Ref struct {
	Entity string
	ID     string
}

// String renders the ref in entity/id form.
func (r Ref) String() string { return r.Entity + "/" + r.ID }

// ParseRef inverts Ref.String. IDs may themselves contain slashes; only the
// first separator splits.
func ParseRef(s string) (Ref, error) {
	entity, id, ok := strings.Cut(s, "/")
	if !ok || entity == "" || id == "" {
		return Ref{}, fmt.Errorf("store: malformed ref %q", s)
	}
	return Ref{Entity: entity, ID: id}, nil
}

// Query describes one read: the entity type plus optional filter, sort,
// and pagination. A nil Filter matches everything; a nil Page means no
// window and no totals.
type Query struct {
	Entity string
	Filter *api.Filter
	Sort   api.Sort
	Page   *api.Page
}

// Result bundles the matched records with the optional total match count.
// Total is set only when the query's Page requested it, and reports the
// full match count independent of the pagination window.
type Result struct {
	Records []Record
	Total   *int64
}

// Store opens read transactions against the primary record store.
type Store interface {
	// BeginRead starts a read transaction. The returned Tx must be closed
	// on every exit path.
	BeginRead(ctx context.Context) (Tx, error)
	// Close releases the store.
	Close() error
}

// Tx is a read transaction.
type Tx interface {
	// LoadObjects evaluates the query, ordering before windowing. Zero
	// matches yield an empty result, not an error.
	LoadObjects(ctx context.Context, q Query) (Result, error)
	// Get fetches a single record by identity. Missing records return
	// ErrNotFound.
	Get(ctx context.Context, entity, id string) (Record, error)
	// Close releases the transaction.
	Close() error
}

// Counter is an optional Store capability reporting per-entity record
// counts, used for stats reporting.
type Counter interface {
	Counts(ctx context.Context) (map[string]int64, error)
}
