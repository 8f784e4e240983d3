// Package sift layers a full-text search index over a primary document
// store's read path. It decorates a store.Store: filtered and sorted reads
// the index can serve entirely are translated into index queries, and
// everything else is delegated to the primary store unchanged. Callers see
// one store interface either way.
//
// # Routing
//
// Each LoadObjects is dispatched on three branches. A query without a
// filter always delegates. A query whose filter touches a field the
// registry does not mark indexed, or a path deeper than one hop, delegates
// unchanged; the same applies to sort keys and sortable fields. Only when
// every predicate and every sort key is index-expressible does the query
// route to the index. The whole query routes or the whole query delegates,
// never a mix: partial index answers cannot be merged with store answers
// without breaking ordering and pagination.
//
// A translation failure on an eligible query is returned to the caller as
// an *api.TranslationError. It is not a routing miss, and it never falls
// back silently.
//
// # Usage
//
//	primary, err := sqlstore.New("app.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer primary.Close()
//
//	ss, err := sift.New(sift.Config{
//	    Store:          primary,
//	    SchemaPath:     "schema.yaml",
//	    IndexPath:      "app.bleve",
//	    IndexOnStartup: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ss.Close()
//
//	tx, err := ss.BeginRead(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tx.Close()
//	res, err := tx.LoadObjects(ctx, store.Query{
//	    Entity: "article",
//	    Filter: api.Eq("status", "published"),
//	    Sort:   api.Sort{}.Desc("age"),
//	    Page:   &api.Page{Limit: 20, WantTotal: true},
//	})
//
// The index is a projection, not a second source of truth. Writes go to
// the primary store; IndexRecord and DeleteRecord keep the index current,
// and Bootstrap rebuilds an empty index from the store at startup.
package sift
