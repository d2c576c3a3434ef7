package docstore

import (
	"context"
	"encoding/json"
	"sync"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (tests and dev)
// =============================================================================

// Memory implements Store over a map. Safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]json.RawMessage
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]json.RawMessage)}
}

func (m *Memory) Get(_ context.Context, path string, out any) error {
	m.mu.RLock()
	raw, ok := m.docs[path]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

func (m *Memory) Set(_ context.Context, path string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[path] = raw
	return nil
}

func (m *Memory) Update(_ context.Context, path string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(path, fields)
}

func (m *Memory) updateLocked(path string, fields map[string]any) error {
	raw, ok := m.docs[path]
	if !ok {
		return ErrNotFound
	}
	merged, err := mergeFields(raw, fields)
	if err != nil {
		return err
	}
	m.docs[path] = merged
	return nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, path)
	return nil
}

func (m *Memory) QueryEq(_ context.Context, collection, field string, value any) ([]json.RawMessage, error) {
	want, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []json.RawMessage
	for path, raw := range m.docs {
		if !inCollection(path, collection) {
			continue
		}
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		if got, ok := doc[field]; ok && string(got) == string(want) {
			out = append(out, raw)
		}
	}
	return out, nil
}

func (m *Memory) List(_ context.Context, collection string) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []json.RawMessage
	for path, raw := range m.docs {
		if inCollection(path, collection) {
			out = append(out, raw)
		}
	}
	return out, nil
}

// BatchWrite applies ops under one lock. A failing op restores the
// pre-batch state.
func (m *Memory) BatchWrite(_ context.Context, ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]json.RawMessage, len(m.docs))
	for k, v := range m.docs {
		snapshot[k] = v
	}

	for _, op := range ops {
		var err error
		switch op.Kind {
		case OpSet:
			var raw json.RawMessage
			raw, err = json.Marshal(op.Doc)
			if err == nil {
				m.docs[op.Path] = raw
			}
		case OpUpdate:
			err = m.updateLocked(op.Path, op.Fields)
		case OpDelete:
			delete(m.docs, op.Path)
		default:
			err = ErrInvalidPath
		}
		if err != nil {
			m.docs = snapshot
			return err
		}
	}
	return nil
}

// Len reports the number of stored documents.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// =============================================================================
// HELPERS
// =============================================================================

// inCollection reports whether path is a direct member of collection.
func inCollection(path, collection string) bool {
	prefix := collection + "/"
	if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
		return false
	}
	rest := path[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return false
		}
	}
	return true
}

// mergeFields merges top-level fields into an existing raw document.
func mergeFields(raw json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for k, v := range fields {
		enc, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		doc[k] = enc
	}
	return json.Marshal(doc)
}
