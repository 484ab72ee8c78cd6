package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/propdesk/pricing"
)

// PositionPL is a position valued at a mark price.
type PositionPL struct {
	Position
	Mark         float64 `json:"mark"`
	Live         bool    `json:"live"` // Mark came from a quote, not the stored snapshot
	MarketValue  float64 `json:"marketValue"`
	UnrealizedPL float64 `json:"unrealizedPL"`
}

type Summary struct {
	Positions    []PositionPL `json:"positions"`
	CostBasis    float64      `json:"costBasis"`
	MarketValue  float64      `json:"marketValue"`
	UnrealizedPL float64      `json:"unrealizedPL"`
}

// Summarize values positions against quotes. A nil source, a missing quote
// or a non-finite quote falls back to the position's CurrentPrice.
func Summarize(ctx context.Context, positions []Position, quotes pricing.QuoteSource) Summary {
	out := Summary{Positions: make([]PositionPL, 0, len(positions))}
	var cost, value, pl decimal.Decimal

	for _, p := range positions {
		row := PositionPL{Position: p, Mark: p.CurrentPrice}
		if quotes != nil {
			if q, err := quotes.Quote(ctx, p.Symbol); err == nil && finite(q.Price) {
				row.Mark = q.Price
				row.Live = true
			}
		}

		entry := notional(p.EntryPrice, p.Quantity)
		mark := notional(row.Mark, p.Quantity)
		diff := mark.Sub(entry)
		if p.Side == Sell {
			diff = diff.Neg()
		}

		row.MarketValue, _ = mark.Float64()
		row.UnrealizedPL, _ = diff.Float64()
		out.Positions = append(out.Positions, row)

		cost = cost.Add(entry)
		value = value.Add(mark)
		pl = pl.Add(diff)
	}

	out.CostBasis, _ = cost.Float64()
	out.MarketValue, _ = value.Float64()
	out.UnrealizedPL, _ = pl.Float64()
	return out
}

// Valuation is the active book valued at live prices.
type Valuation struct {
	Mode    AccountMode `json:"accountMode"`
	Balance float64     `json:"balance"`
	Equity  float64     `json:"equity"` // Balance + MarketValue
	Summary
}

func (c *Container) Valuation(ctx context.Context, quotes pricing.QuoteSource) Valuation {
	c.mu.Lock()
	mode := c.mode
	book := c.books[mode].clone()
	c.mu.Unlock()

	s := Summarize(ctx, book.Positions, quotes)
	return Valuation{
		Mode:    mode,
		Balance: book.Balance,
		Equity:  credit(book.Balance, decimal.NewFromFloat(s.MarketValue)),
		Summary: s,
	}
}
