package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var OrdersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "ledger",
		Name:      "orders_total",
		Help:      "Orders recorded by account mode, side and status",
	},
	[]string{"mode", "side", "status"},
)

var PositionsClosed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "ledger",
		Name:      "positions_closed_total",
		Help:      "Positions closed by account mode",
	},
	[]string{"mode"},
)

var PersistErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "ledger",
		Name:      "persist_errors_total",
		Help:      "Local storage failures by dataset",
	},
	[]string{"dataset"},
)

var BalanceGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "propdesk",
		Subsystem: "ledger",
		Name:      "balance",
		Help:      "Cash balance of the signed-in user's book",
	},
	[]string{"mode"},
)
