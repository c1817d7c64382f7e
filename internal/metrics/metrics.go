package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Decision label values
const (
	DecisionAllowed = "allowed"
	DecisionDenied  = "denied"
)

var (
	GateDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flagscore_ratelimit_decisions_total",
		Help: "Total number of rate limit decisions grouped by gate and outcome",
	}, []string{"gate", "decision"})
	// Client keys are deliberately not used as labels; they are unbounded.
	GateTrackedClients = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flagscore_ratelimit_tracked_clients",
		Help: "Number of client keys currently held in memory by a gate",
	}, []string{"gate"})
	GateSweptEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flagscore_ratelimit_swept_entries_total",
		Help: "Total number of expired client entries removed by the janitor",
	}, []string{"gate"})
	GateResets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flagscore_ratelimit_resets_total",
		Help: "Total number of client entries reset through the admin API",
	}, []string{"gate"})
	StatsRecordFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flagscore_ratelimit_stats_record_failures_total",
		Help: "Total number of decisions that could not be written to the statistics store",
	})
)

func init() {
	prometheus.MustRegister(GateDecisions)
	prometheus.MustRegister(GateTrackedClients)
	prometheus.MustRegister(GateSweptEntries)
	prometheus.MustRegister(GateResets)
	prometheus.MustRegister(StatsRecordFailures)
}

// ObserveDecision counts one decision for gate.
func ObserveDecision(gate string, allowed bool) {
	decision := DecisionDenied
	if allowed {
		decision = DecisionAllowed
	}
	GateDecisions.WithLabelValues(gate, decision).Inc()
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
