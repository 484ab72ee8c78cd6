// Package kvstore is the on-device key-value store the ledger persists into.
package kvstore

import (
	"context"
	"strings"
)

// Guest is the key namespace used when no user is signed in.
const Guest = "guest"

// Store is a string-to-string map that survives process restarts.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Key builds the namespaced key {dataset}_{mode}_{user}. An empty user maps
// to Guest; an empty mode is omitted.
func Key(dataset, mode, userID string) string {
	if userID == "" {
		userID = Guest
	}
	parts := []string{dataset}
	if mode != "" {
		parts = append(parts, mode)
	}
	parts = append(parts, userID)
	return strings.Join(parts, "_")
}
