package id

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorMonotonicWithinMillisecond(t *testing.T) {
	t.Parallel()

	frozen := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	g := NewGenerator(func() time.Time { return frozen }, 42)

	prev := g.Next()
	for i := 0; i < 1000; i++ {
		next := g.Next()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestGeneratorConcurrentUnique(t *testing.T) {
	t.Parallel()

	g := NewGenerator(nil, 7)

	const workers, each = 8, 250
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*each)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				s := g.Next()
				mu.Lock()
				seen[s] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*each)
}

func TestTimeRoundTrip(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	g := NewGenerator(func() time.Time { return at }, 1)

	got, err := Time(g.Next())
	require.NoError(t, err)
	assert.True(t, got.Equal(at))

	_, err = Time("not-a-ulid")
	assert.Error(t, err)
}

func TestNewSortable(t *testing.T) {
	t.Parallel()

	ids := make([]string, 50)
	for i := range ids {
		ids[i] = New()
	}
	assert.True(t, sort.StringsAreSorted(ids))
}
