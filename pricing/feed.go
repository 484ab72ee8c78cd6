package pricing

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// MockFeed random-walks a fixed set of symbols. Each step moves every price
// by a uniform draw in [-Volatility, +Volatility] of its current value.
type MockFeed struct {
	Volatility float64

	mu     sync.Mutex
	rng    *rand.Rand
	now    func() time.Time
	store  *QuoteStore
	open   map[string]float64
	prices map[string]float64
	subs   []chan Quote
}

// NewMockFeed seeds the feed with starting prices. A zero seed picks one from
// the clock.
func NewMockFeed(seeds map[string]float64, volatility float64, seed int64) *MockFeed {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	f := &MockFeed{
		Volatility: volatility,
		rng:        rand.New(rand.NewSource(seed)),
		now:        time.Now,
		store:      NewQuoteStore(),
		open:       make(map[string]float64, len(seeds)),
		prices:     make(map[string]float64, len(seeds)),
	}
	for sym, p := range seeds {
		f.open[sym] = p
		f.prices[sym] = p
		f.store.Set(Quote{Symbol: sym, Price: p, Open: p, High: p, Low: p, Time: f.now()})
	}
	return f
}

// Store is the quote store the feed publishes into.
func (f *MockFeed) Store() *QuoteStore { return f.store }

// Quote implements QuoteSource.
func (f *MockFeed) Quote(ctx context.Context, symbol string) (Quote, error) {
	return f.store.Get(symbol)
}

// Subscribe returns a channel receiving every published quote. Slow
// subscribers miss updates rather than stalling the feed.
func (f *MockFeed) Subscribe(buffer int) <-chan Quote {
	ch := make(chan Quote, buffer)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch
}

// Step advances every symbol once and returns the new quotes sorted by symbol.
func (f *MockFeed) Step() []Quote {
	f.mu.Lock()
	defer f.mu.Unlock()

	symbols := make([]string, 0, len(f.prices))
	for sym := range f.prices {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	ts := f.now()
	out := make([]Quote, 0, len(symbols))
	for _, sym := range symbols {
		prev, _ := f.store.Get(sym)
		p := f.prices[sym] * (1 + (f.rng.Float64()-0.5)*2*f.Volatility)
		if p <= 0 {
			p = f.prices[sym]
		}
		f.prices[sym] = p

		q := Quote{
			Symbol: sym,
			Price:  p,
			Open:   f.open[sym],
			High:   maxf(prev.High, p),
			Low:    minf(prev.Low, p),
			Time:   ts,
		}
		f.store.Set(q)
		out = append(out, q)
	}

	for _, q := range out {
		for _, ch := range f.subs {
			select {
			case ch <- q:
			default:
			}
		}
	}
	return out
}

// Run steps the feed every interval until ctx is done, then closes all
// subscriber channels.
func (f *MockFeed) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer f.closeSubs()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Step()
		}
	}
}

func (f *MockFeed) closeSubs() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}

func maxf(a, b float64) float64 {
	if a < b {
		return b
	}
	return a
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
