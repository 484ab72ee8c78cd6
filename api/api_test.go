package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/propdesk/docstore"
	"github.com/rustyeddy/propdesk/kvstore"
	"github.com/rustyeddy/propdesk/ledger"
	"github.com/rustyeddy/propdesk/pricing"
	"github.com/rustyeddy/propdesk/replicate"
)

type testServer struct {
	router http.Handler
	ledger *ledger.Container
	quotes *pricing.QuoteStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	l := ledger.New(ledger.Options{Store: kvstore.NewMemory()})
	l.Open(context.Background(), "u1")
	quotes := pricing.NewQuoteStore()
	quotes.Set(pricing.Quote{Symbol: "COMI", Price: 55, Open: 50})

	return &testServer{
		router: NewRouter(Dependencies{Ledger: l, Quotes: quotes}),
		ledger: l,
		quotes: quotes,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

const buyBody = `{"symbol":"COMI","type":"buy","orderType":"market","price":50,"quantity":100,"status":"filled"}`

func TestAddOrderAndLedgerView(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/orders", buyBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var o ledger.Order
	decode(t, rec, &o)
	assert.Equal(t, "COMI", o.Symbol)
	assert.Equal(t, ledger.Filled, o.Status)

	rec = s.do(t, http.MethodGet, "/api/v1/ledger", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var v ledgerView
	decode(t, rec, &v)
	assert.Equal(t, "u1", v.UserID)
	assert.Equal(t, ledger.Evaluation, v.AccountMode)
	assert.Equal(t, 95000.0, v.Balance)
	assert.Equal(t, 95000.0, v.EvaluationBalance)
	assert.Equal(t, 100000.0, v.FundedBalance)
	assert.Len(t, v.Positions, 1)
	assert.Len(t, v.Orders, 1)
}

func TestAddOrderRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/orders", `{"symbol":"COMI","type":"hold","orderType":"market","status":"filled"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/orders", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.ledger.Orders())
}

func TestClosePosition(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/orders", buyBody).Code)
	pid := s.ledger.Positions()[0].ID

	rec := s.do(t, http.MethodDelete, "/api/v1/positions/nonexistent-id", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, s.ledger.Positions(), 1)

	rec = s.do(t, http.MethodDelete, "/api/v1/positions/"+pid, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var sell ledger.Order
	decode(t, rec, &sell)
	assert.Equal(t, ledger.Sell, sell.Side)
	assert.Equal(t, 50.0, sell.Price)
	assert.Equal(t, 100000.0, s.ledger.Balance())
}

func TestClosePositionAtLivePrice(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/orders", buyBody).Code)
	pid := s.ledger.Positions()[0].ID

	rec := s.do(t, http.MethodDelete, "/api/v1/positions/"+pid+"?mark=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 100500.0, s.ledger.Balance(), 1e-9)
}

func TestModeAndBalance(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/v1/mode", `{"accountMode":"Funded"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ledger.Funded, s.ledger.AccountMode())

	rec = s.do(t, http.MethodPut, "/api/v1/mode", `{"accountMode":"Demo"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/balance", `{"balance":2500}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2500.0, s.ledger.FundedBalance())
	assert.Equal(t, 100000.0, s.ledger.EvaluationBalance())

	rec = s.do(t, http.MethodPut, "/api/v1/balance", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/orders", buyBody).Code)

	rec := s.do(t, http.MethodDelete, "/api/v1/session", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, kvstore.Guest, s.ledger.UserID())
	assert.Empty(t, s.ledger.Orders())

	rec = s.do(t, http.MethodPost, "/api/v1/session", `{"userId":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var v ledgerView
	decode(t, rec, &v)
	assert.Len(t, v.Orders, 1)
	assert.Equal(t, 95000.0, v.Balance)
}

func TestPLAndQuotes(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/orders", buyBody).Code)

	rec := s.do(t, http.MethodGet, "/api/v1/pl", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var val ledger.Valuation
	decode(t, rec, &val)
	assert.InDelta(t, 500, val.UnrealizedPL, 1e-9)
	assert.InDelta(t, 100500, val.Equity, 1e-9)

	rec = s.do(t, http.MethodGet, "/api/v1/quotes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var quotes []quoteView
	decode(t, rec, &quotes)
	require.Len(t, quotes, 1)
	assert.Equal(t, 55.0, quotes[0].Price)
	assert.InDelta(t, 5, quotes[0].Change, 1e-9)
	assert.InDelta(t, 10, quotes[0].ChangePercent, 1e-9)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, strings.TrimSpace(rec.Body.String()))

	rec = s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRetryReplication(t *testing.T) {
	ctx := context.Background()
	remote := docstore.NewMemory()
	outbox := replicate.New(remote, replicate.Config{MaxAttempts: 1}, nil)
	l := ledger.New(ledger.Options{Store: kvstore.NewMemory(), Replicator: outbox})
	l.Open(ctx, "u1")
	router := NewRouter(Dependencies{Ledger: l, Replication: outbox})

	remote.FailNext(errors.New("backend unavailable"))
	o, err := l.AddOrder(ctx, ledger.OrderRequest{
		Symbol: "COMI", Side: ledger.Buy, Kind: ledger.Market,
		Price: 50, Quantity: 100, Status: ledger.Filled,
	})
	require.NoError(t, err)
	require.NoError(t, outbox.Drain(ctx))
	require.Equal(t, 1, outbox.Status().Failed)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/health/retry", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp retryResponse
	decode(t, rec, &resp)
	assert.Equal(t, 1, resp.Requeued)
	require.NotNil(t, resp.Health.Replication)
	assert.Equal(t, 1, resp.Health.Replication.Pending)
	assert.Equal(t, 0, resp.Health.Replication.Failed)

	require.NoError(t, outbox.Drain(ctx))
	_, err = remote.Get(ctx, docstore.Orders, o.ID, "u1")
	assert.NoError(t, err)
}

func TestRetryWithoutReplication(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/health/retry", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
}

func TestQuoteStream(t *testing.T) {
	hub := NewHub(nil)
	l := ledger.New(ledger.Options{Store: kvstore.NewMemory()})
	srv := httptest.NewServer(NewRouter(Dependencies{Ledger: l, Hub: hub}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/quotes"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	feed := make(chan pricing.Quote, 1)
	go hub.Run(ctx, feed)
	feed <- pricing.Quote{Symbol: "COMI", Price: 51.25}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var q pricing.Quote
	require.NoError(t, json.NewDecoder(bytes.NewReader(msg)).Decode(&q))
	assert.Equal(t, "COMI", q.Symbol)
	assert.Equal(t, 51.25, q.Price)
}
