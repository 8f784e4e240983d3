package sift

import (
	"errors"
	"strings"

	"pkt.systems/sift/schema"
	"pkt.systems/sift/store"
)

// Config wires a SearchStore: the primary store it decorates, the
// capability registry, and the index location.
type Config struct {
	// Store is the primary store whose read path is decorated. Required.
	// The SearchStore never owns it; whoever opened it closes it.
	Store store.Store

	// Registry is the capability registry. Takes precedence over
	// SchemaPath.
	Registry *schema.Registry

	// SchemaPath locates the YAML registry declaration, loaded when
	// Registry is nil.
	SchemaPath string

	// IndexPath is the on-disk index location, created on first open.
	IndexPath string

	// IndexInMemory opens a transient in-memory index instead of
	// IndexPath. Meant for tests and development.
	IndexInMemory bool

	// IndexOnStartup populates an empty index from Store inside New,
	// blocking until the build completes. A non-empty index is left
	// untouched; use Rebuild to force a full reindex.
	IndexOnStartup bool

	// BootstrapParallelism caps concurrent per-entity indexing during
	// bootstrap and rebuild. Zero means the default.
	BootstrapParallelism int

	// BootstrapPageSize is the store read window per bootstrap batch.
	// Zero means the default.
	BootstrapPageSize int
}

// Validate sanity-checks the configuration.
func (c *Config) Validate() error {
	if c.Store == nil {
		return errors.New("config: store is required")
	}
	if c.Registry == nil && strings.TrimSpace(c.SchemaPath) == "" {
		return errors.New("config: registry or schema path is required")
	}
	if !c.IndexInMemory && strings.TrimSpace(c.IndexPath) == "" {
		return errors.New("config: index path is required unless index-in-memory is set")
	}
	if c.BootstrapParallelism < 0 {
		return errors.New("config: bootstrap parallelism must be >= 0")
	}
	if c.BootstrapPageSize < 0 {
		return errors.New("config: bootstrap page size must be >= 0")
	}
	return nil
}
