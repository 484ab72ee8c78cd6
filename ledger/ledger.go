// Package ledger keeps the Evaluation and Funded books of one signed-in user:
// positions, orders and cash balance. Every mutation is written through to
// local storage and queued for remote replication.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/propdesk/docstore"
	"github.com/rustyeddy/propdesk/kvstore"
	"github.com/rustyeddy/propdesk/pkg/id"
	"github.com/rustyeddy/propdesk/pkg/logging"
	"github.com/rustyeddy/propdesk/pricing"
	"github.com/rustyeddy/propdesk/replicate"
)

// DefaultBalance is the starting cash of a fresh book.
const DefaultBalance = 100000

// Replicator accepts documents for best-effort remote replication.
// *replicate.Outbox satisfies it.
type Replicator interface {
	Upsert(doc docstore.Document) error
	Delete(c docstore.Collection, docID, userID, mode string) error
}

type Options struct {
	Store          kvstore.Store
	Replicator     Replicator
	Logger         *logging.Logger
	IDs            *id.Generator
	Now            func() time.Time
	DefaultBalance *float64    // starting cash; DefaultBalance when nil
	DefaultMode    AccountMode // active mode when none is stored; Evaluation if empty
}

// Container owns both books for the lifetime of a session. All methods are
// safe for concurrent use; mutations are applied one at a time, including
// their writes to local storage.
type Container struct {
	mu sync.Mutex

	store          kvstore.Store
	repl           Replicator
	log            *logging.Logger
	ids            *id.Generator
	now            func() time.Time
	defaultBalance float64
	defaultMode    AccountMode

	user  string
	mode  AccountMode
	books map[AccountMode]*Book

	lastPersistErr   error
	lastPersistErrAt time.Time
}

func New(opts Options) *Container {
	if opts.Store == nil {
		opts.Store = kvstore.NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IDs == nil {
		opts.IDs = id.NewGenerator(opts.Now, 0)
	}
	startBalance := float64(DefaultBalance)
	if opts.DefaultBalance != nil && finite(*opts.DefaultBalance) {
		startBalance = *opts.DefaultBalance
	}
	if _, err := ParseAccountMode(string(opts.DefaultMode)); err != nil {
		opts.DefaultMode = Evaluation
	}

	c := &Container{
		store:          opts.Store,
		repl:           opts.Replicator,
		log:            opts.Logger.WithComponent("ledger"),
		ids:            opts.IDs,
		now:            opts.Now,
		defaultBalance: startBalance,
		defaultMode:    opts.DefaultMode,
	}
	c.resetLocked()
	return c
}

func (c *Container) resetLocked() {
	c.user = kvstore.Guest
	c.mode = c.defaultMode
	c.books = map[AccountMode]*Book{
		Evaluation: newBook(c.defaultBalance),
		Funded:     newBook(c.defaultBalance),
	}
}

// Open loads both books and the active mode of userID from local storage.
// An empty userID opens the guest books. Unreadable entries fall back to
// empty books with the default balance.
func (c *Container) Open(ctx context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.user = userID
	if c.user == "" {
		c.user = kvstore.Guest
	}
	for _, m := range Modes {
		c.books[m] = c.loadBookLocked(ctx, m)
		BalanceGauge.WithLabelValues(string(m)).Set(c.books[m].Balance)
	}
	c.mode = c.loadModeLocked(ctx)

	c.log.WithUser(c.user).WithMode(string(c.mode)).Info("ledger opened",
		zap.Int("evaluation_positions", len(c.books[Evaluation].Positions)),
		zap.Int("funded_positions", len(c.books[Funded].Positions)))
}

// Logout drops in-memory state and returns to the guest session. Stored
// books are left untouched.
func (c *Container) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Info("ledger logout", logging.UserID(c.user))
	c.resetLocked()
}

// SetAccountMode switches the active book and persists the choice.
func (c *Container) SetAccountMode(ctx context.Context, mode AccountMode) error {
	if _, err := ParseAccountMode(string(mode)); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	c.saveModeLocked(ctx)
	c.log.WithUser(c.user).WithMode(string(mode)).Info("account mode switched")
	return nil
}

// AddOrder records an order in the active book. A filled buy also debits
// price × quantity and opens a position at that price. Only malformed side,
// order type or status values are rejected; storage failures are logged.
func (c *Container) AddOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if err := req.validate(); err != nil {
		return Order{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addOrderLocked(ctx, req), nil
}

func (c *Container) addOrderLocked(ctx context.Context, req OrderRequest) Order {
	book := c.books[c.mode]

	o := Order{
		ID:             c.ids.Next(),
		Symbol:         req.Symbol,
		Side:           req.Side,
		Kind:           req.Kind,
		Price:          req.Price,
		Quantity:       req.Quantity,
		Status:         req.Status,
		Time:           req.Time,
		ExecutionPrice: req.ExecutionPrice,
	}
	if o.Time.IsZero() {
		o.Time = c.now()
	}
	if o.Status == Filled && o.ExecutionPrice == nil {
		p := o.Price
		o.ExecutionPrice = &p
	}

	book.Orders = append(book.Orders, o)
	c.saveOrdersLocked(ctx)
	c.replicateLocked(docstore.Orders, o.ID, o)
	OrdersTotal.WithLabelValues(string(c.mode), string(o.Side), string(o.Status)).Inc()

	c.log.Info("order added",
		logging.Mode(string(c.mode)),
		logging.OrderID(o.ID),
		logging.Symbol(o.Symbol),
		logging.Side(string(o.Side)),
		zap.String("status", string(o.Status)),
		logging.Price(o.Price),
		logging.Quantity(o.Quantity))

	if o.Status == Filled && o.Side == Buy {
		book.Balance = debit(book.Balance, notional(o.Price, o.Quantity))
		c.saveBalanceLocked(ctx)
		c.addPositionLocked(ctx, PositionRequest{
			Symbol:       o.Symbol,
			Side:         Buy,
			EntryPrice:   o.Price,
			CurrentPrice: o.Price,
			Quantity:     o.Quantity,
			OpenTime:     o.Time,
		})
	}
	return o
}

// AddPosition appends a position to the active book without touching the
// balance.
func (c *Container) AddPosition(ctx context.Context, req PositionRequest) (Position, error) {
	if err := req.validate(); err != nil {
		return Position{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addPositionLocked(ctx, req), nil
}

func (c *Container) addPositionLocked(ctx context.Context, req PositionRequest) Position {
	book := c.books[c.mode]

	p := Position{
		ID:           c.ids.Next(),
		Symbol:       req.Symbol,
		Side:         req.Side,
		EntryPrice:   req.EntryPrice,
		CurrentPrice: req.CurrentPrice,
		Quantity:     req.Quantity,
		OpenTime:     req.OpenTime,
	}
	if p.OpenTime.IsZero() {
		p.OpenTime = c.now()
	}

	book.Positions = append(book.Positions, p)
	c.savePositionsLocked(ctx)
	c.replicateLocked(docstore.Positions, p.ID, p)

	c.log.Info("position opened",
		logging.Mode(string(c.mode)),
		logging.PositionID(p.ID),
		logging.Symbol(p.Symbol),
		logging.Price(p.EntryPrice),
		logging.Quantity(p.Quantity))
	return p
}

// ClosePosition removes the position from the active book, credits
// CurrentPrice × Quantity and records a filled market sell at CurrentPrice.
// The synthesized order is returned. An unknown id is logged and leaves the
// book unchanged; ok is false in that case.
func (c *Container) ClosePosition(ctx context.Context, positionID string) (sell Order, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	book := c.books[c.mode]
	i := book.positionIndex(positionID)
	if i < 0 {
		c.log.Info("close ignored, position not found",
			logging.Mode(string(c.mode)), logging.PositionID(positionID))
		return Order{}, false
	}
	p := book.Positions[i]

	book.Positions = append(book.Positions[:i:i], book.Positions[i+1:]...)
	c.savePositionsLocked(ctx)
	c.replicateDeleteLocked(docstore.Positions, p.ID)

	book.Balance = credit(book.Balance, notional(p.CurrentPrice, p.Quantity))
	c.saveBalanceLocked(ctx)
	PositionsClosed.WithLabelValues(string(c.mode)).Inc()

	c.log.Info("position closed",
		logging.Mode(string(c.mode)),
		logging.PositionID(p.ID),
		logging.Symbol(p.Symbol),
		logging.Price(p.CurrentPrice),
		logging.Balance(book.Balance))

	sell = c.addOrderLocked(ctx, OrderRequest{
		Symbol:   p.Symbol,
		Side:     Sell,
		Kind:     Market,
		Price:    p.CurrentPrice,
		Quantity: p.Quantity,
		Status:   Filled,
		Time:     c.now(),
	})
	return sell, true
}

// UpdateBalance sets the active book's cash balance. Negative values are
// accepted; NaN and infinities are not.
func (c *Container) UpdateBalance(ctx context.Context, balance float64) error {
	if !finite(balance) {
		return fmt.Errorf("%w: %v", ErrInvalidBalance, balance)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[c.mode].Balance = balance
	c.saveBalanceLocked(ctx)
	return nil
}

// MarkPrices refreshes CurrentPrice of every position in the active book
// that has a usable quote and returns how many were updated. Positions
// without one keep their last snapshot. Only moved positions are replicated.
func (c *Container) MarkPrices(ctx context.Context, quotes pricing.QuoteSource) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	book := c.books[c.mode]
	var moved []int
	for i := range book.Positions {
		q, err := quotes.Quote(ctx, book.Positions[i].Symbol)
		if err != nil || !finite(q.Price) {
			continue
		}
		if book.Positions[i].CurrentPrice != q.Price {
			book.Positions[i].CurrentPrice = q.Price
			moved = append(moved, i)
		}
	}
	if len(moved) > 0 {
		c.savePositionsLocked(ctx)
		for _, i := range moved {
			p := book.Positions[i]
			c.replicateLocked(docstore.Positions, p.ID, p)
		}
	}
	return len(moved)
}

func (c *Container) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *Container) AccountMode() AccountMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Positions returns a copy of the active book's positions.
func (c *Container) Positions() []Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.books[c.mode].clone().Positions
}

// Orders returns a copy of the active book's orders.
func (c *Container) Orders() []Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.books[c.mode].clone().Orders
}

func (c *Container) Balance() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.books[c.mode].Balance
}

func (c *Container) EvaluationBalance() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.books[Evaluation].Balance
}

func (c *Container) FundedBalance() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.books[Funded].Balance
}

// Book returns a copy of the book for mode.
func (c *Container) Book(mode AccountMode) Book {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.books[mode]
	if !ok {
		return Book{}
	}
	return b.clone()
}

func (c *Container) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{UserID: c.user, Mode: c.mode, Books: make(map[AccountMode]Book, len(c.books))}
	for m, b := range c.books {
		s.Books[m] = b.clone()
	}
	return s
}

// Health reports the most recent local storage failure and, when the
// replicator exposes it, the replication outbox state.
type Health struct {
	LastPersistError   string            `json:"lastPersistError,omitempty"`
	LastPersistErrorAt *time.Time        `json:"lastPersistErrorAt,omitempty"`
	Replication        *replicate.Status `json:"replication,omitempty"`
}

func (c *Container) Health() Health {
	c.mu.Lock()
	var h Health
	if c.lastPersistErr != nil {
		h.LastPersistError = c.lastPersistErr.Error()
		at := c.lastPersistErrAt
		h.LastPersistErrorAt = &at
	}
	repl := c.repl
	c.mu.Unlock()

	if r, ok := repl.(interface{ Status() replicate.Status }); ok {
		st := r.Status()
		h.Replication = &st
	}
	return h
}
