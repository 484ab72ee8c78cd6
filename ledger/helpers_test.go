package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustField(t *testing.T, body []byte, name string) any {
	t.Helper()

	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m))
	v, ok := m[name]
	require.True(t, ok, "field %q missing", name)
	return v
}
