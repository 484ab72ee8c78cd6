package ledger

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/propdesk/docstore"
	"github.com/rustyeddy/propdesk/kvstore"
	"github.com/rustyeddy/propdesk/pkg/id"
	"github.com/rustyeddy/propdesk/replicate"
)

var t0 = time.Date(2024, 3, 10, 10, 30, 0, 0, time.UTC)

type fixture struct {
	c      *Container
	kv     *kvstore.Memory
	remote *docstore.Memory
	outbox *replicate.Outbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	kv := kvstore.NewMemory()
	remote := docstore.NewMemory()
	outbox := replicate.New(remote, replicate.Config{MaxAttempts: 1}, nil)
	return &fixture{
		c:      newContainer(kv, outbox),
		kv:     kv,
		remote: remote,
		outbox: outbox,
	}
}

func newContainer(kv kvstore.Store, repl Replicator) *Container {
	now := func() time.Time { return t0 }
	return New(Options{
		Store:      kv,
		Replicator: repl,
		Now:        now,
		IDs:        id.NewGenerator(now, 11),
	})
}

func buyCOMI() OrderRequest {
	return OrderRequest{
		Symbol:   "COMI",
		Side:     Buy,
		Kind:     Market,
		Price:    50,
		Quantity: 100,
		Status:   Filled,
		Time:     t0,
	}
}

func TestFilledBuyOpensPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.c.Open(ctx, "u1")

	o, err := f.c.AddOrder(ctx, buyCOMI())
	require.NoError(t, err)

	assert.Equal(t, 95000.0, f.c.Balance())
	assert.NotEmpty(t, o.ID)
	require.NotNil(t, o.ExecutionPrice)
	assert.Equal(t, 50.0, *o.ExecutionPrice)

	orders := f.c.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, Filled, orders[0].Status)

	positions := f.c.Positions()
	require.Len(t, positions, 1)
	p := positions[0]
	assert.Equal(t, "COMI", p.Symbol)
	assert.Equal(t, 50.0, p.EntryPrice)
	assert.Equal(t, 50.0, p.CurrentPrice)
	assert.Equal(t, 100.0, p.Quantity)
	assert.Equal(t, Buy, p.Side)
	assert.True(t, p.OpenTime.Equal(t0))
	assert.NotEqual(t, o.ID, p.ID)
}

func TestClosePositionCreditsAndRecordsSell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.c.Open(ctx, "u1")

	_, err := f.c.AddOrder(ctx, buyCOMI())
	require.NoError(t, err)
	p := f.c.Positions()[0]

	sell, ok := f.c.ClosePosition(ctx, p.ID)
	require.True(t, ok)

	assert.Equal(t, 100000.0, f.c.Balance())
	assert.Empty(t, f.c.Positions())

	orders := f.c.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, Buy, orders[0].Side)
	assert.Equal(t, sell, orders[1])
	assert.Equal(t, Sell, sell.Side)
	assert.Equal(t, Filled, sell.Status)
	assert.Equal(t, Market, sell.Kind)
	assert.Equal(t, 50.0, sell.Price)
	assert.Equal(t, 100.0, sell.Quantity)
}

func TestCloseUsesSnapshotPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.c.Open(ctx, "u1")

	p, err := f.c.AddPosition(ctx, PositionRequest{Symbol: "TMGH", Side: Buy, EntryPrice: 20, CurrentPrice: 22.5, Quantity: 40})
	require.NoError(t, err)
	assert.Equal(t, 100000.0, f.c.Balance())

	_, ok := f.c.ClosePosition(ctx, p.ID)
	require.True(t, ok)
	assert.InDelta(t, 100900.0, f.c.Balance(), 1e-9)
}

func TestCloseUnknownPositionIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.c.Open(ctx, "u1")

	_, err := f.c.AddOrder(ctx, buyCOMI())
	require.NoError(t, err)
	before := f.c.Snapshot()

	sell, ok := f.c.ClosePosition(ctx, "nonexistent-id")
	assert.False(t, ok)
	assert.Equal(t, Order{}, sell)
	assert.Equal(t, before, f.c.Snapshot())
}

func TestPendingLimitOrderHasNoEffect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.c.Open(ctx, "u1")

	req := buyCOMI()
	req.Kind = Limit
	req.Status = Pending
	o, err := f.c.AddOrder(ctx, req)
	require.NoError(t, err)

	assert.Nil(t, o.ExecutionPrice)
	assert.Len(t, f.c.Orders(), 1)
	assert.Empty(t, f.c.Positions())
	assert.Equal(t, 100000.0, f.c.Balance())
}

func TestFilledSellAddedDirectlyIsRecordOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.c.Open(ctx, "u1")

	req := buyCOMI()
	req.Side = Sell
	_, err := f.c.AddOrder(ctx, req)
	require.NoError(t, err)

	assert.Len(t, f.c.Orders(), 1)
	assert.Empty(t, f.c.Positions())
	assert.Equal(t, 100000.0, f.c.Balance())
}

func TestModeSwitchKeepsBooksApart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.c.Open(ctx, "u1")

	_, err := f.c.AddOrder(ctx, buyCOMI())
	require.NoError(t, err)
	evalBefore := f.c.Book(Evaluation)

	require.NoError(t, f.c.SetAccountMode(ctx, Funded))
	assert.Equal(t, Funded, f.c.AccountMode())
	assert.Empty(t, f.c.Positions())
	assert.Equal(t, 100000.0, f.c.Balance())

	fp, err := f.c.AddPosition(ctx, PositionRequest{Symbol: "HRHO", Side: Buy, EntryPrice: 18, CurrentPrice: 18, Quantity: 10})
	require.NoError(t, err)

	require.NoError(t, f.c.SetAccountMode(ctx, Evaluation))
	assert.Equal(t, evalBefore, f.c.Book(Evaluation))
	assert.Equal(t, evalBefore.Positions, f.c.Positions())
	assert.Equal(t, evalBefore.Orders, f.c.Orders())
	assert.Equal(t, 95000.0, f.c.Balance())

	funded := f.c.Book(Funded)
	require.Len(t, funded.Positions, 1)
	assert.Equal(t, fp, funded.Positions[0])
	assert.Equal(t, 95000.0, f.c.EvaluationBalance())
	assert.Equal(t, 100000.0, f.c.FundedBalance())
}

func TestSetAccountModeRejectsUnknown(t *testing.T) {
	f := newFixture(t)
	err := f.c.SetAccountMode(context.Background(), AccountMode("Demo"))
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.Equal(t, Evaluation, f.c.AccountMode())
}

func TestDefaultModeAppliesOnlyWhenNoneStored(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()

	c := New(Options{Store: kv, DefaultMode: Funded})
	assert.Equal(t, Funded, c.AccountMode())

	c.Open(ctx, "u1")
	assert.Equal(t, Funded, c.AccountMode())
	require.NoError(t, c.SetAccountMode(ctx, Evaluation))

	c2 := New(Options{Store: kv, DefaultMode: Funded})
	c2.Open(ctx, "u1")
	assert.Equal(t, Evaluation, c2.AccountMode())

	c3 := New(Options{Store: kv, DefaultMode: "Demo"})
	assert.Equal(t, Evaluation, c3.AccountMode())
}

func TestAddOrderRejectsUnknownEnums(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, mutate := range []func(*OrderRequest){
		func(r *OrderRequest) { r.Side = "hold" },
		func(r *OrderRequest) { r.Kind = "iceberg" },
		func(r *OrderRequest) { r.Status = "open" },
	} {
		req := buyCOMI()
		mutate(&req)
		_, err := f.c.AddOrder(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidOrder)
	}
	assert.Empty(t, f.c.Orders())

	_, err := f.c.AddPosition(ctx, PositionRequest{Symbol: "COMI", Side: "hold"})
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestNonFiniteValuesAreRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.c.Open(ctx, "u1")
	nan := math.NaN()

	for _, mutate := range []func(*OrderRequest){
		func(r *OrderRequest) { r.Price = math.Inf(1) },
		func(r *OrderRequest) { r.Price = nan },
		func(r *OrderRequest) { r.Quantity = math.Inf(-1) },
		func(r *OrderRequest) { r.ExecutionPrice = &nan },
	} {
		req := buyCOMI()
		mutate(&req)
		_, err := f.c.AddOrder(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidOrder)
	}
	assert.Empty(t, f.c.Orders())
	assert.Empty(t, f.c.Positions())
	assert.Equal(t, 100000.0, f.c.Balance())

	_, err := f.c.AddPosition(ctx, PositionRequest{Symbol: "COMI", Side: Buy, EntryPrice: nan, Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidOrder)
	assert.Empty(t, f.c.Positions())

	assert.ErrorIs(t, f.c.UpdateBalance(ctx, math.Inf(1)), ErrInvalidBalance)
	assert.Equal(t, 100000.0, f.c.Balance())
	assert.Empty(t, f.outbox.Pending())
}

func TestStartingBalance(t *testing.T) {
	zero := 0.0
	c := New(Options{DefaultBalance: &zero})
	assert.Equal(t, 0.0, c.EvaluationBalance())
	assert.Equal(t, 0.0, c.FundedBalance())

	c.Open(context.Background(), "u1")
	assert.Equal(t, 0.0, c.Balance())

	assert.Equal(t, 100000.0, New(Options{}).Balance())
}

func TestReloadReproducesPersistedState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.c.Open(ctx, "u1")

	_, err := f.c.AddOrder(ctx, buyCOMI())
	require.NoError(t, err)
	pending := buyCOMI()
	pending.Kind, pending.Status, pending.Price = Stop, Pending, 45.25
	_, err = f.c.AddOrder(ctx, pending)
	require.NoError(t, err)
	require.NoError(t, f.c.SetAccountMode(ctx, Funded))
	require.NoError(t, f.c.UpdateBalance(ctx, 12345.678))
	before := f.c.Snapshot()

	restarted := newContainer(f.kv, nil)
	restarted.Open(ctx, "u1")
	assert.Equal(t, before, restarted.Snapshot())
	assert.Equal(t, Funded, restarted.AccountMode())
	assert.Equal(t, 12345.678, restarted.Balance())
}

func TestUsersAreNamespaced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.c.Open(ctx, "")
	assert.Equal(t, kvstore.Guest, f.c.UserID())
	_, err := f.c.AddOrder(ctx, buyCOMI())
	require.NoError(t, err)

	_, ok, err := f.kv.Get(ctx, "orders_Evaluation_guest")
	require.NoError(t, err)
	assert.True(t, ok)

	f.c.Open(ctx, "u2")
	assert.Empty(t, f.c.Orders())
	assert.Equal(t, 100000.0, f.c.Balance())
}

func TestLogoutResetsMemoryOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.c.Open(ctx, "u1")
	_, err := f.c.AddOrder(ctx, buyCOMI())
	require.NoError(t, err)

	f.c.Logout()
	assert.Equal(t, kvstore.Guest, f.c.UserID())
	assert.Empty(t, f.c.Orders())
	assert.Equal(t, 100000.0, f.c.Balance())

	v, ok, err := f.kv.Get(ctx, "balance_Evaluation_u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "95000", v)

	f.c.Open(ctx, "u1")
	assert.Len(t, f.c.Orders(), 1)
}

func TestCorruptLocalDataFallsBackToDefaults(t *testing.T) {
	kv := kvstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, "positions_Evaluation_u1", "{not json"))
	require.NoError(t, kv.Set(ctx, "balance_Evaluation_u1", "lots"))
	require.NoError(t, kv.Set(ctx, "accountMode_u1", "Platinum"))
	require.NoError(t, kv.Set(ctx, "balance_Funded_u1", "2500"))

	c := newContainer(kv, nil)
	c.Open(ctx, "u1")

	assert.Equal(t, Evaluation, c.AccountMode())
	assert.Empty(t, c.Positions())
	assert.Equal(t, 100000.0, c.Balance())
	assert.Equal(t, 2500.0, c.FundedBalance())
}

func TestLocalStorageFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.c.Open(ctx, "u1")

	f.kv.FailWith(errors.New("quota exceeded"))
	_, err := f.c.AddOrder(ctx, buyCOMI())
	require.NoError(t, err)

	assert.Equal(t, 95000.0, f.c.Balance())
	assert.Len(t, f.c.Positions(), 1)

	h := f.c.Health()
	assert.Contains(t, h.LastPersistError, "quota exceeded")
	require.NotNil(t, h.LastPersistErrorAt)
	assert.True(t, h.LastPersistErrorAt.Equal(t0))
}

func TestFailedReadOpensDefaults(t *testing.T) {
	kv := kvstore.NewMemory()
	kv.FailWith(errors.New("io error"))

	c := newContainer(kv, nil)
	c.Open(context.Background(), "u1")
	assert.Equal(t, 100000.0, c.Balance())
	assert.Empty(t, c.Orders())
	assert.NotEmpty(t, c.Health().LastPersistError)
}

func TestReplicatesToRemote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.c.Open(ctx, "u1")

	_, err := f.c.AddOrder(ctx, buyCOMI())
	require.NoError(t, err)
	require.NoError(t, f.outbox.Drain(ctx))

	positions, err := f.remote.List(ctx, docstore.Positions, "u1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "Evaluation", positions[0].Mode)
	assert.Equal(t, "COMI", mustField(t, positions[0].Body, "symbol"))

	_, ok := f.c.ClosePosition(ctx, f.c.Positions()[0].ID)
	require.True(t, ok)
	require.NoError(t, f.outbox.Drain(ctx))

	positions, err = f.remote.List(ctx, docstore.Positions, "u1")
	require.NoError(t, err)
	assert.Empty(t, positions)

	orders, err := f.remote.List(ctx, docstore.Orders, "u1")
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	h := f.c.Health()
	require.NotNil(t, h.Replication)
	assert.Equal(t, uint64(4), h.Replication.Replicated)
}

func TestRemoteFailureNeverRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.c.Open(ctx, "u1")

	down := errors.New("remote down")
	f.remote.FailNext(down, down)
	_, err := f.c.AddOrder(ctx, buyCOMI())
	require.NoError(t, err)
	require.NoError(t, f.outbox.Drain(ctx))

	assert.Equal(t, 95000.0, f.c.Balance())
	assert.Len(t, f.c.Positions(), 1)

	h := f.c.Health()
	require.NotNil(t, h.Replication)
	assert.Equal(t, 2, h.Replication.Failed)
	assert.Equal(t, "remote down", h.Replication.LastError)
}

func TestFilledBuysDebitSumOfNotional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.c.Open(ctx, "u1")

	orders := []struct{ price, qty float64 }{
		{50, 100}, {12.35, 7}, {0.1, 3}, {101.01, 19}, {7.77, 250},
	}
	want := 100000.0
	for _, o := range orders {
		req := buyCOMI()
		req.Price, req.Quantity = o.price, o.qty
		_, err := f.c.AddOrder(ctx, req)
		require.NoError(t, err)
		want -= o.price * o.qty
	}

	assert.InDelta(t, want, f.c.Balance(), 1e-6)
	assert.Len(t, f.c.Positions(), len(orders))
}

func TestConcurrentOrdersGetUniqueIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.c.Open(ctx, "u1")

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := buyCOMI()
			req.Quantity = 1
			_, err := f.c.AddOrder(ctx, req)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, o := range f.c.Orders() {
		assert.False(t, seen[o.ID], "duplicate id %s", o.ID)
		seen[o.ID] = true
	}
	for _, p := range f.c.Positions() {
		assert.False(t, seen[p.ID], "duplicate id %s", p.ID)
		seen[p.ID] = true
	}
	assert.Len(t, seen, 2*n)
	assert.InDelta(t, 100000.0-50*n, f.c.Balance(), 1e-9)
}

func TestReadsReturnCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.c.Open(ctx, "u1")
	_, err := f.c.AddOrder(ctx, buyCOMI())
	require.NoError(t, err)

	orders := f.c.Orders()
	*orders[0].ExecutionPrice = 1
	orders[0].Symbol = "XXX"
	f.c.Positions()[0].Quantity = 0

	assert.Equal(t, "COMI", f.c.Orders()[0].Symbol)
	assert.Equal(t, 50.0, *f.c.Orders()[0].ExecutionPrice)
	assert.Equal(t, 100.0, f.c.Positions()[0].Quantity)
}
