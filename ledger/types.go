package ledger

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidMode    = errors.New("invalid account mode")
	ErrInvalidOrder   = errors.New("invalid order")
	ErrInvalidBalance = errors.New("invalid balance")
)

// AccountMode selects which book is active.
type AccountMode string

const (
	Evaluation AccountMode = "Evaluation"
	Funded     AccountMode = "Funded"
)

// Modes lists every account mode.
var Modes = []AccountMode{Evaluation, Funded}

func ParseAccountMode(s string) (AccountMode, error) {
	switch AccountMode(s) {
	case Evaluation, Funded:
		return AccountMode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) valid() bool { return s == Buy || s == Sell }

type OrderKind string

const (
	Market OrderKind = "market"
	Limit  OrderKind = "limit"
	Stop   OrderKind = "stop"
)

func (k OrderKind) valid() bool { return k == Market || k == Limit || k == Stop }

type OrderStatus string

const (
	Filled    OrderStatus = "filled"
	Pending   OrderStatus = "pending"
	Cancelled OrderStatus = "cancelled"
)

func (s OrderStatus) valid() bool { return s == Filled || s == Pending || s == Cancelled }

// Position is an open holding. CurrentPrice is a snapshot taken when the
// position was created or last marked, not a live quote.
type Position struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"type"`
	EntryPrice   float64   `json:"entryPrice"`
	CurrentPrice float64   `json:"currentPrice"`
	Quantity     float64   `json:"quantity"`
	OpenTime     time.Time `json:"timestamp"`
}

type Order struct {
	ID             string      `json:"id"`
	Symbol         string      `json:"symbol"`
	Side           Side        `json:"type"`
	Kind           OrderKind   `json:"orderType"`
	Price          float64     `json:"price"`
	Quantity       float64     `json:"quantity"`
	Status         OrderStatus `json:"status"`
	Time           time.Time   `json:"time"`
	ExecutionPrice *float64    `json:"executionPrice,omitempty"`
}

// OrderRequest is an Order before an identifier has been assigned.
type OrderRequest struct {
	Symbol         string      `json:"symbol"`
	Side           Side        `json:"type"`
	Kind           OrderKind   `json:"orderType"`
	Price          float64     `json:"price"`
	Quantity       float64     `json:"quantity"`
	Status         OrderStatus `json:"status"`
	Time           time.Time   `json:"time"`
	ExecutionPrice *float64    `json:"executionPrice,omitempty"`
}

func (r OrderRequest) validate() error {
	if !r.Side.valid() {
		return fmt.Errorf("%w: side %q", ErrInvalidOrder, r.Side)
	}
	if !r.Kind.valid() {
		return fmt.Errorf("%w: order type %q", ErrInvalidOrder, r.Kind)
	}
	if !r.Status.valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidOrder, r.Status)
	}
	if !finite(r.Price) {
		return fmt.Errorf("%w: price %v", ErrInvalidOrder, r.Price)
	}
	if !finite(r.Quantity) {
		return fmt.Errorf("%w: quantity %v", ErrInvalidOrder, r.Quantity)
	}
	if r.ExecutionPrice != nil && !finite(*r.ExecutionPrice) {
		return fmt.Errorf("%w: execution price %v", ErrInvalidOrder, *r.ExecutionPrice)
	}
	return nil
}

// PositionRequest is a Position before an identifier has been assigned.
type PositionRequest struct {
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"type"`
	EntryPrice   float64   `json:"entryPrice"`
	CurrentPrice float64   `json:"currentPrice"`
	Quantity     float64   `json:"quantity"`
	OpenTime     time.Time `json:"timestamp"`
}

func (r PositionRequest) validate() error {
	if !r.Side.valid() {
		return fmt.Errorf("%w: side %q", ErrInvalidOrder, r.Side)
	}
	for _, v := range []float64{r.EntryPrice, r.CurrentPrice, r.Quantity} {
		if !finite(v) {
			return fmt.Errorf("%w: non-finite position value %v", ErrInvalidOrder, v)
		}
	}
	return nil
}

// Book is the ledger of one account mode.
type Book struct {
	Positions []Position `json:"positions"`
	Orders    []Order    `json:"orders"`
	Balance   float64    `json:"balance"`
}

func newBook(balance float64) *Book {
	return &Book{Positions: []Position{}, Orders: []Order{}, Balance: balance}
}

func (b *Book) clone() Book {
	out := Book{
		Positions: make([]Position, len(b.Positions)),
		Orders:    make([]Order, len(b.Orders)),
		Balance:   b.Balance,
	}
	copy(out.Positions, b.Positions)
	for i, o := range b.Orders {
		if o.ExecutionPrice != nil {
			p := *o.ExecutionPrice
			o.ExecutionPrice = &p
		}
		out.Orders[i] = o
	}
	return out
}

func (b *Book) positionIndex(id string) int {
	for i, p := range b.Positions {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Snapshot is a copy of both books and the active mode.
type Snapshot struct {
	UserID string               `json:"userId"`
	Mode   AccountMode          `json:"accountMode"`
	Books  map[AccountMode]Book `json:"books"`
}
