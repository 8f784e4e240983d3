// Package sqlstore is a SQLite-backed primary store. Records live in one
// records table as JSON documents; filters compile to parameterized WHERE
// clauses over json_extract so the database evaluates them, including the
// deeper paths and unindexed fields the search index cannot serve.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"pkt.systems/sift/store"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS records (
	entity TEXT NOT NULL,
	id     TEXT NOT NULL,
	doc    TEXT NOT NULL,
	PRIMARY KEY (entity, id)
);
CREATE INDEX IF NOT EXISTS records_entity ON records (entity);
`

// Store wraps a SQLite database holding every entity's records.
type Store struct {
	db *sql.DB
}

// New opens (and if needed creates) the database at dbPath. Pragmas go on
// the DSN so every pooled connection gets them: case_sensitive_like because
// LIKE serves the prefix and contains filters, which compare
// case-sensitively in the other engines.
func New(dbPath string) (*Store, error) {
	dsn := dbPath
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	pragmas := []string{
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
		"busy_timeout(30000)",
		"case_sensitive_like(1)",
	}
	dsn += "?_pragma=" + strings.Join(pragmas, "&_pragma=")

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open database: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces a record, assigning a fresh ID when the record
// has none. The stored record is returned.
func (s *Store) Put(ctx context.Context, rec store.Record) (store.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	doc, err := json.Marshal(rec.Doc)
	if err != nil {
		return store.Record{}, fmt.Errorf("sqlstore: marshal %s/%s: %w", rec.Entity, rec.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO records (entity, id, doc) VALUES (?, ?, ?)",
		rec.Entity, rec.ID, string(doc),
	)
	if err != nil {
		return store.Record{}, fmt.Errorf("sqlstore: put %s/%s: %w", rec.Entity, rec.ID, err)
	}
	return rec, nil
}

// PutAll stores every record in one transaction.
func (s *Store) PutAll(ctx context.Context, recs []store.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO records (entity, id, doc) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("sqlstore: prepare put: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		doc, err := json.Marshal(rec.Doc)
		if err != nil {
			return fmt.Errorf("sqlstore: marshal %s/%s: %w", rec.Entity, rec.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, rec.Entity, rec.ID, string(doc)); err != nil {
			return fmt.Errorf("sqlstore: put %s/%s: %w", rec.Entity, rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit: %w", err)
	}
	committed = true
	return nil
}

// Delete removes a record if present.
func (s *Store) Delete(ctx context.Context, entity, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE entity = ? AND id = ?", entity, id)
	if err != nil {
		return fmt.Errorf("sqlstore: delete %s/%s: %w", entity, id, err)
	}
	return nil
}

// Counts reports the number of stored records per entity.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT entity, COUNT(*) FROM records GROUP BY entity")
	if err != nil {
		return nil, fmt.Errorf("sqlstore: count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var entity string
		var n int64
		if err := rows.Scan(&entity, &n); err != nil {
			return nil, fmt.Errorf("sqlstore: scan count: %w", err)
		}
		counts[entity] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: count records: %w", err)
	}
	return counts, nil
}

// BeginRead starts a read transaction pinned to one snapshot of the
// database.
func (s *Store) BeginRead(ctx context.Context) (store.Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: begin read: %w", err)
	}
	return &tx{tx: sqlTx}, nil
}

type tx struct {
	tx *sql.Tx
}

func (t *tx) Close() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("sqlstore: close read: %w", err)
	}
	return nil
}

func (t *tx) Get(ctx context.Context, entity, id string) (store.Record, error) {
	var raw string
	err := t.tx.QueryRowContext(ctx,
		"SELECT doc FROM records WHERE entity = ? AND id = ?", entity, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("sqlstore: get %s/%s: %w", entity, id, err)
	}
	return decodeRecord(entity, id, raw)
}

func (t *tx) LoadObjects(ctx context.Context, q store.Query) (store.Result, error) {
	where, args, err := compileFilter(q.Filter)
	if err != nil {
		return store.Result{}, err
	}
	clause := "entity = ?"
	queryArgs := append([]any{q.Entity}, args...)
	if where != "" {
		clause += " AND " + where
	}

	offset, limit, bounded := q.Page.Window()
	if !bounded {
		limit = -1
	}
	stmt := fmt.Sprintf(
		"SELECT id, doc FROM records WHERE %s ORDER BY %s LIMIT ? OFFSET ?",
		clause, compileSort(q.Sort),
	)
	rows, err := t.tx.QueryContext(ctx, stmt, append(queryArgs, limit, offset)...)
	if err != nil {
		return store.Result{}, fmt.Errorf("sqlstore: query %s: %w", q.Entity, err)
	}
	defer rows.Close()

	records := make([]store.Record, 0)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return store.Result{}, fmt.Errorf("sqlstore: scan %s: %w", q.Entity, err)
		}
		rec, err := decodeRecord(q.Entity, id, raw)
		if err != nil {
			return store.Result{}, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return store.Result{}, fmt.Errorf("sqlstore: query %s: %w", q.Entity, err)
	}

	result := store.Result{Records: records}
	if q.Page != nil && q.Page.WantTotal {
		var total int64
		countStmt := fmt.Sprintf("SELECT COUNT(*) FROM records WHERE %s", clause)
		if err := t.tx.QueryRowContext(ctx, countStmt, queryArgs...).Scan(&total); err != nil {
			return store.Result{}, fmt.Errorf("sqlstore: count %s: %w", q.Entity, err)
		}
		result.Total = &total
	}
	return result, nil
}

func decodeRecord(entity, id, raw string) (store.Record, error) {
	doc := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return store.Record{}, fmt.Errorf("sqlstore: decode %s/%s: %w", entity, id, err)
	}
	return store.Record{Entity: entity, ID: id, Doc: doc}, nil
}
