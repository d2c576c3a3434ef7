/*
Package sqlite provides a SQLite-backed implementation of the document
store contract.

PURPOSE:
  One table holds every document: path-addressed rows with a JSON body.
  Equality queries use json_extract over the body; batch writes run in a
  single SQL transaction for all-or-nothing semantics.

WAL MODE:
  The database is opened with WAL so readers do not block the single
  writer, matching the loosely-coordinated multi-view access pattern of
  the callers.

USAGE:
  store, err := sqlite.New("./data/jimpitan.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - docstore: interface definition and memory implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rukun/jimpitan-engine/docstore"
)

// Store implements docstore.Store on SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one pooled connection also keeps
	// ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		path       TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		body       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection
		ON documents(collection);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SINGLE-DOCUMENT OPERATIONS
// =============================================================================

func (s *Store) Get(ctx context.Context, path string, out any) error {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE path = ?`, path).Scan(&body)
	if err == sql.ErrNoRows {
		return docstore.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(body), out)
}

func (s *Store) Set(ctx context.Context, path string, doc any) error {
	collection, _, err := docstore.SplitPath(path)
	if err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (path, collection, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		path, collection, string(body), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := updateInTx(ctx, tx, path, fields); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path)
	return err
}

func updateInTx(ctx context.Context, tx *sql.Tx, path string, fields map[string]any) error {
	var body string
	err := tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE path = ?`, path).Scan(&body)
	if err == sql.ErrNoRows {
		return docstore.ErrNotFound
	}
	if err != nil {
		return err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return err
	}
	for k, v := range fields {
		enc, err := json.Marshal(v)
		if err != nil {
			return err
		}
		doc[k] = enc
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET body = ?, updated_at = ? WHERE path = ?`,
		string(merged), time.Now().UTC().Format(time.RFC3339), path)
	return err
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *Store) QueryEq(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM documents
		WHERE collection = ? AND json_extract(body, '$.' || ?) = ?
		ORDER BY path`,
		collection, field, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBodies(rows)
}

func (s *Store) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM documents WHERE collection = ? ORDER BY path`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBodies(rows)
}

func collectBodies(rows *sql.Rows) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		out = append(out, json.RawMessage(body))
	}
	return out, rows.Err()
}

// =============================================================================
// ATOMIC BATCH WRITES
// =============================================================================

// BatchWrite applies ops in one SQL transaction: all or nothing.
func (s *Store) BatchWrite(ctx context.Context, ops []docstore.Op) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, op := range ops {
		switch op.Kind {
		case docstore.OpSet:
			collection, _, err := docstore.SplitPath(op.Path)
			if err != nil {
				return err
			}
			body, err := json.Marshal(op.Doc)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO documents (path, collection, body, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(path) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
				op.Path, collection, string(body), now); err != nil {
				return err
			}
		case docstore.OpUpdate:
			if err := updateInTx(ctx, tx, op.Path, op.Fields); err != nil {
				return err
			}
		case docstore.OpDelete:
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM documents WHERE path = ?`, op.Path); err != nil {
				return err
			}
		default:
			return docstore.ErrInvalidPath
		}
	}
	return tx.Commit()
}
