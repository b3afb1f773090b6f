// Package metrics exposes Prometheus instrumentation for the poll engine and
// mutation coordinator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aldwick/wardview/internal/model"
)

var (
	pollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wardview",
		Name:      "poll_total",
		Help:      "Completed poll cycles by result.",
	}, []string{"result"})

	pollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wardview",
		Name:      "poll_duration_seconds",
		Help:      "Duration of poll cycles.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	connectivityState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wardview",
		Name:      "connectivity_state",
		Help:      "Current connectivity state (1 for the active state, 0 otherwise).",
	}, []string{"state"})

	mutationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wardview",
		Name:      "mutation_total",
		Help:      "Mutation attempts by operation and result.",
	}, []string{"op", "result"})
)

// ObservePoll records one completed poll cycle.
func ObservePoll(d time.Duration, err error) {
	pollDuration.Observe(d.Seconds())
	pollTotal.WithLabelValues(result(err)).Inc()
}

// SetConnectivity marks the active connectivity state.
func SetConnectivity(state model.Connectivity) {
	for _, s := range []model.Connectivity{model.ConnConnecting, model.ConnLive, model.ConnOffline} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		connectivityState.WithLabelValues(string(s)).Set(v)
	}
}

// RecordMutation records one mutation attempt.
func RecordMutation(op string, err error) {
	mutationTotal.WithLabelValues(op, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
