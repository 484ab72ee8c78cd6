package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator hands out ULIDs that are strictly increasing for the lifetime of
// the generator, even when many are requested within the same millisecond.
type Generator struct {
	mu   sync.Mutex
	now  func() time.Time
	mono io.Reader
}

// NewGenerator returns a Generator reading time from now. A zero seed is
// replaced with one drawn from crypto/rand.
func NewGenerator(now func() time.Time, seed int64) *Generator {
	if now == nil {
		now = time.Now
	}
	if seed == 0 {
		seed = randomSeed()
	}
	return &Generator{
		now:  now,
		mono: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}
}

// Next returns the next identifier.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.now().UTC()), g.mono)
	if err != nil {
		// Only happens when the monotonic entropy overflows inside one
		// millisecond or the clock is before the unix epoch.
		panic(err)
	}
	return id.String()
}

// Time extracts the generation timestamp from an identifier.
func Time(s string) (time.Time, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(id.Time()), nil
}

var std = NewGenerator(nil, 0)

// New returns a ULID string from the process-wide generator.
func New() string {
	return std.Next()
}

func randomSeed() int64 {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return seed
}
