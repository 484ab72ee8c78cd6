package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryOwnership(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, Document{Collection: Orders, ID: "O1", UserID: "u1", Body: []byte(`{}`)}))
	assert.ErrorIs(t, m.Put(ctx, Document{Collection: Orders, ID: "O1", UserID: "u2"}), ErrNotFound)
	assert.ErrorIs(t, m.Delete(ctx, Orders, "O1", "u2"), ErrNotFound)

	_, err := m.Get(ctx, Orders, "O1", "u2")
	assert.ErrorIs(t, err, ErrNotFound)

	docs, err := m.List(ctx, Orders, "u1")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	require.NoError(t, m.Delete(ctx, Orders, "O1", "u1"))
	assert.ErrorIs(t, m.Delete(ctx, Orders, "O1", "u1"), ErrNotFound)
}

func TestMemoryFailNext(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	down := errors.New("unavailable")

	m.FailNext(down, down)
	assert.ErrorIs(t, m.Put(ctx, Document{Collection: Positions, ID: "P1", UserID: "u1"}), down)
	assert.ErrorIs(t, m.Put(ctx, Document{Collection: Positions, ID: "P1", UserID: "u1"}), down)
	assert.NoError(t, m.Put(ctx, Document{Collection: Positions, ID: "P1", UserID: "u1"}))
	assert.Equal(t, 3, m.Writes())
}
