// Package api exposes the ledger to screens over HTTP and streams mock
// quotes over a websocket.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rustyeddy/propdesk/ledger"
	"github.com/rustyeddy/propdesk/pkg/logging"
	"github.com/rustyeddy/propdesk/pricing"
)

// Retrier requeues dead-lettered replication ops. *replicate.Outbox
// satisfies it.
type Retrier interface {
	Retry() int
}

// Dependencies is everything the handlers need.
type Dependencies struct {
	Ledger      *ledger.Container
	Quotes      *pricing.QuoteStore
	Hub         *Hub    // optional
	Replication Retrier // optional
	Logger      *logging.Logger
}

// NewRouter wires the routes:
//
//	/api/v1/session      POST open, DELETE logout
//	/api/v1/ledger       GET active book with both balances
//	/api/v1/positions    GET list, POST add, DELETE /{id} close (?mark=true)
//	/api/v1/orders       GET list, POST add
//	/api/v1/mode         PUT switch account mode
//	/api/v1/balance      PUT set balance
//	/api/v1/pl           GET valuation at live prices
//	/api/v1/quotes       GET latest quotes
//	/api/v1/health       GET persistence and replication state
//	/api/v1/health/retry POST requeue dead-lettered replication ops
//	/metrics             prometheus
//	/ws/quotes           websocket quote stream
func NewRouter(deps Dependencies) *mux.Router {
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Quotes == nil {
		deps.Quotes = pricing.NewQuoteStore()
	}
	log := deps.Logger.WithComponent("api")
	h := &handlers{ledger: deps.Ledger, quotes: deps.Quotes, repl: deps.Replication, log: log}

	r := mux.NewRouter()
	r.Use(requestID, recovery(log), accessLog(log))

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/session", h.openSession).Methods(http.MethodPost)
	v1.HandleFunc("/session", h.logout).Methods(http.MethodDelete)
	v1.HandleFunc("/ledger", h.getLedger).Methods(http.MethodGet)
	v1.HandleFunc("/positions", h.listPositions).Methods(http.MethodGet)
	v1.HandleFunc("/positions", h.addPosition).Methods(http.MethodPost)
	v1.HandleFunc("/positions/{id}", h.closePosition).Methods(http.MethodDelete)
	v1.HandleFunc("/orders", h.listOrders).Methods(http.MethodGet)
	v1.HandleFunc("/orders", h.addOrder).Methods(http.MethodPost)
	v1.HandleFunc("/mode", h.setMode).Methods(http.MethodPut)
	v1.HandleFunc("/balance", h.setBalance).Methods(http.MethodPut)
	v1.HandleFunc("/pl", h.getPL).Methods(http.MethodGet)
	v1.HandleFunc("/quotes", h.listQuotes).Methods(http.MethodGet)
	v1.HandleFunc("/health", h.health).Methods(http.MethodGet)
	v1.HandleFunc("/health/retry", h.retryReplication).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if deps.Hub != nil {
		r.HandleFunc("/ws/quotes", deps.Hub.ServeWS)
	}
	return r
}
