/*
Package docstore defines the narrow document-store contract the ledger
consumes, plus its error taxonomy.

PURPOSE:
  The remote store is an external collaborator: per-document CRUD,
  equality queries, and atomic multi-document batch writes. Nothing in
  the ledger core depends on more than this interface.

DOCUMENT MODEL:
  Documents are JSON objects addressed by a path of the form
  "<collection>/<id>", where collections may nest
  ("timelines/<tid>/payments"). Typed values round-trip through JSON:
  Get unmarshals into the caller's struct, Set marshals from it.

WRITE SEMANTICS:
  Set:    create or overwrite
  Update: top-level field merge; fails with ErrNotFound when absent
  BatchWrite: all-or-nothing across ops

IMPLEMENTATIONS:
  - docstore/memory.go:   in-memory, for tests and dev
  - docstore/sqlite:      durable, single documents table

SEE ALSO:
  - dues: the service layer built on this contract
*/
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when a document path does not exist.
	// Callers fall back to create-on-update where semantically safe.
	ErrNotFound = errors.New("document not found")

	// ErrStoreUnavailable is returned when the store has not been
	// initialized. Read paths degrade to empty results instead.
	ErrStoreUnavailable = errors.New("document store unavailable")

	// ErrInvalidPath is returned for paths that do not name a document.
	ErrInvalidPath = errors.New("invalid document path")
)

// =============================================================================
// STORE CONTRACT
// =============================================================================

// Store is the consumed remote-store contract.
type Store interface {
	// Get unmarshals the document at path into out.
	Get(ctx context.Context, path string, out any) error

	// Set creates or overwrites the document at path.
	Set(ctx context.Context, path string, doc any) error

	// Update merges top-level fields into an existing document.
	// Fails with ErrNotFound if the document is absent.
	Update(ctx context.Context, path string, fields map[string]any) error

	// Delete removes the document at path. Missing documents are a no-op.
	Delete(ctx context.Context, path string) error

	// QueryEq returns all documents in a collection whose top-level field
	// equals value.
	QueryEq(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error)

	// List returns every document in a collection.
	List(ctx context.Context, collection string) ([]json.RawMessage, error)

	// BatchWrite applies ops atomically: either all succeed or none do.
	BatchWrite(ctx context.Context, ops []Op) error
}

// =============================================================================
// BATCH OPERATIONS
// =============================================================================

type OpKind string

const (
	OpSet    OpKind = "set"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is one entry in an atomic batch.
type Op struct {
	Kind   OpKind
	Path   string
	Doc    any            // OpSet payload
	Fields map[string]any // OpUpdate payload
}

// SetOp builds a set operation.
func SetOp(path string, doc any) Op { return Op{Kind: OpSet, Path: path, Doc: doc} }

// UpdateOp builds a field-merge operation.
func UpdateOp(path string, fields map[string]any) Op {
	return Op{Kind: OpUpdate, Path: path, Fields: fields}
}

// DeleteOp builds a delete operation.
func DeleteOp(path string) Op { return Op{Kind: OpDelete, Path: path} }

// =============================================================================
// PATH HELPERS
// =============================================================================

// SplitPath separates a document path into its collection and id.
// "timelines/t1/payments/r1_period_2" -> ("timelines/t1/payments", "r1_period_2").
func SplitPath(path string) (collection, id string, err error) {
	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return "", "", ErrInvalidPath
	}
	return path[:i], path[i+1:], nil
}

// Decode unmarshals a raw document into out.
func Decode(raw json.RawMessage, out any) error {
	return json.Unmarshal(raw, out)
}

// DecodeAll unmarshals every raw document into a slice of T.
func DecodeAll[T any](raws []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
