package replicate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OpsTotal counts finished replication ops by outcome:
// replicated, not_found, dead, rejected.
var OpsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "replication",
		Name:      "ops_total",
		Help:      "Replication ops by collection, kind and outcome",
	},
	[]string{"collection", "kind", "result"},
)

var AttemptErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "propdesk",
		Subsystem: "replication",
		Name:      "attempt_errors_total",
		Help:      "Failed replication attempts, retried or not",
	},
	[]string{"collection", "kind"},
)

var QueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "propdesk",
		Subsystem: "replication",
		Name:      "queue_depth",
		Help:      "Ops waiting to be replicated",
	},
)

var DeadLetters = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "propdesk",
		Subsystem: "replication",
		Name:      "dead_letters",
		Help:      "Ops that exhausted their retries",
	},
)

var AttemptLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "propdesk",
		Subsystem: "replication",
		Name:      "attempt_latency_ms",
		Help:      "Document store round trip per attempt in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	},
	[]string{"kind"},
)
