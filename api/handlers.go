package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rustyeddy/propdesk/ledger"
	"github.com/rustyeddy/propdesk/pkg/logging"
	"github.com/rustyeddy/propdesk/pricing"
)

type handlers struct {
	ledger *ledger.Container
	quotes *pricing.QuoteStore
	repl   Retrier
	log    *logging.Logger
}

type sessionRequest struct {
	UserID string `json:"userId"`
}

type modeRequest struct {
	AccountMode string `json:"accountMode"`
}

type balanceRequest struct {
	Balance *float64 `json:"balance"`
}

// ledgerView is what a dashboard screen renders.
type ledgerView struct {
	UserID            string             `json:"userId"`
	AccountMode       ledger.AccountMode `json:"accountMode"`
	Balance           float64            `json:"balance"`
	EvaluationBalance float64            `json:"evaluationBalance"`
	FundedBalance     float64            `json:"fundedBalance"`
	Positions         []ledger.Position  `json:"positions"`
	Orders            []ledger.Order     `json:"orders"`
}

func (h *handlers) view() ledgerView {
	s := h.ledger.Snapshot()
	active := s.Books[s.Mode]
	return ledgerView{
		UserID:            s.UserID,
		AccountMode:       s.Mode,
		Balance:           active.Balance,
		EvaluationBalance: s.Books[ledger.Evaluation].Balance,
		FundedBalance:     s.Books[ledger.Funded].Balance,
		Positions:         active.Positions,
		Orders:            active.Orders,
	}
}

func (h *handlers) openSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.ledger.Open(r.Context(), req.UserID)
	writeJSON(w, http.StatusOK, h.view())
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	h.ledger.Logout()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) getLedger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view())
}

func (h *handlers) listPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.Positions())
}

func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.Orders())
}

func (h *handlers) addOrder(w http.ResponseWriter, r *http.Request) {
	var req ledger.OrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	o, err := h.ledger.AddOrder(r.Context(), req)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidOrder) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *handlers) addPosition(w http.ResponseWriter, r *http.Request) {
	var req ledger.PositionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.ledger.AddPosition(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handlers) closePosition(w http.ResponseWriter, r *http.Request) {
	positionID := mux.Vars(r)["id"]
	if r.URL.Query().Get("mark") == "true" {
		h.ledger.MarkPrices(r.Context(), h.quotes)
	}
	sell, ok := h.ledger.ClosePosition(r.Context(), positionID)
	if !ok {
		writeError(w, http.StatusNotFound, "position not found")
		return
	}
	writeJSON(w, http.StatusOK, sell)
}

func (h *handlers) setMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, err := ledger.ParseAccountMode(req.AccountMode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.ledger.SetAccountMode(r.Context(), mode); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.view())
}

func (h *handlers) setBalance(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if err := decodeBody(r, &req); err != nil || req.Balance == nil {
		writeError(w, http.StatusBadRequest, "balance is required")
		return
	}
	if err := h.ledger.UpdateBalance(r.Context(), *req.Balance); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.view())
}

func (h *handlers) getPL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.Valuation(r.Context(), h.quotes))
}

// quoteView adds the session move to a quote for ticker screens.
type quoteView struct {
	pricing.Quote
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

func (h *handlers) listQuotes(w http.ResponseWriter, r *http.Request) {
	all := h.quotes.All()
	out := make([]quoteView, 0, len(all))
	for _, q := range all {
		out = append(out, quoteView{Quote: q, Change: q.Change(), ChangePercent: q.ChangePercent()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.Health())
}

type retryResponse struct {
	Requeued int           `json:"requeued"`
	Health   ledger.Health `json:"health"`
}

func (h *handlers) retryReplication(w http.ResponseWriter, r *http.Request) {
	if h.repl == nil {
		writeError(w, http.StatusServiceUnavailable, "replication is not configured")
		return
	}
	n := h.repl.Retry()
	h.log.Info("replication retry requested", zap.Int("requeued", n))
	writeJSON(w, http.StatusOK, retryResponse{Requeued: n, Health: h.ledger.Health()})
}
