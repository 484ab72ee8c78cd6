package docstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memKey struct {
	c  Collection
	id string
}

// Memory is an in-process Store. Failures queued with FailNext are returned
// by the next writes in order, which is how the outbox tests simulate an
// unreachable backend.
type Memory struct {
	mu     sync.Mutex
	docs   map[memKey]Document
	fail   []error
	writes int
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[memKey]Document)}
}

// FailNext makes the next len(errs) Put/Delete calls fail with errs.
func (m *Memory) FailNext(errs ...error) {
	m.mu.Lock()
	m.fail = append(m.fail, errs...)
	m.mu.Unlock()
}

// Writes counts Put/Delete calls, failed ones included.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) popFailLocked() error {
	m.writes++
	if len(m.fail) == 0 {
		return nil
	}
	err := m.fail[0]
	m.fail = m.fail[1:]
	return err
}

func (m *Memory) Put(ctx context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popFailLocked(); err != nil {
		return err
	}
	k := memKey{doc.Collection, doc.ID}
	if prev, ok := m.docs[k]; ok && prev.UserID != doc.UserID {
		return ErrNotFound
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	doc.Body = append([]byte(nil), doc.Body...)
	m.docs[k] = doc
	return nil
}

func (m *Memory) Delete(ctx context.Context, c Collection, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popFailLocked(); err != nil {
		return err
	}
	k := memKey{c, id}
	doc, ok := m.docs[k]
	if !ok || doc.UserID != userID {
		return ErrNotFound
	}
	delete(m.docs, k)
	return nil
}

func (m *Memory) Get(ctx context.Context, c Collection, id, userID string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[memKey{c, id}]
	if !ok || doc.UserID != userID {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (m *Memory) List(ctx context.Context, c Collection, userID string) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Document
	for k, doc := range m.docs {
		if k.c == c && doc.UserID == userID {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Close() error { return nil }
