package pricing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNoQuote is returned when a symbol has never been priced.
var ErrNoQuote = errors.New("price not found")

type Quote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Time   time.Time `json:"time"`
}

// Change is the move from the session open.
func (q Quote) Change() float64 {
	return q.Price - q.Open
}

// ChangePercent is Change relative to Open, or 0 with no open.
func (q Quote) ChangePercent() float64 {
	if q.Open == 0 {
		return 0
	}
	return (q.Price - q.Open) / q.Open * 100
}

type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// QuoteStore holds the latest quote per symbol.
type QuoteStore struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewQuoteStore() *QuoteStore {
	return &QuoteStore{quotes: make(map[string]Quote)}
}

func (s *QuoteStore) Set(q Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.Symbol] = q
}

func (s *QuoteStore) Get(symbol string) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	if !ok {
		return Quote{}, ErrNoQuote
	}
	return q, nil
}

func (s *QuoteStore) Quote(ctx context.Context, symbol string) (Quote, error) {
	return s.Get(symbol)
}

// All returns every quote sorted by symbol.
func (s *QuoteStore) All() []Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
