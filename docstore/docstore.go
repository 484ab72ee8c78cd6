// Package docstore is the remote document database ledger entries are
// replicated to. Documents are opaque JSON bodies keyed by collection and id
// and tagged with the owning user.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

type Collection string

const (
	Positions Collection = "positions"
	Orders    Collection = "orders"
)

// ErrNotFound is returned when a document does not exist or belongs to a
// different user.
var ErrNotFound = errors.New("document not found")

type Document struct {
	Collection Collection      `json:"collection"`
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	Mode       string          `json:"accountMode"`
	Body       json.RawMessage `json:"body"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type Store interface {
	// Put creates the document or replaces the one with the same id.
	Put(ctx context.Context, doc Document) error
	Delete(ctx context.Context, c Collection, id, userID string) error
	Get(ctx context.Context, c Collection, id, userID string) (Document, error)
	List(ctx context.Context, c Collection, userID string) ([]Document, error)
	Close() error
}
