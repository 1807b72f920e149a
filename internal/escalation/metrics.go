package escalation

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sosengine"

var (
	escalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "escalations_total",
			Help:      "Total automatic escalations by resulting level",
		},
		[]string{"level"},
	)

	signalsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "signals_skipped_total",
			Help:      "Candidate signals skipped during a pass by reason",
		},
		[]string{"reason"},
	)

	passDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one escalation pass",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	passCandidates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "pass_candidates",
			Help:      "Number of candidate signals in the most recent pass",
		},
	)

	ticksSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "scheduler_ticks_skipped_total",
			Help:      "Scheduler ticks skipped because the previous pass was still running",
		},
	)
)

func recordEscalation(level int) {
	escalationsTotal.WithLabelValues(strconv.Itoa(level)).Inc()
}

func recordSignalSkipped(reason string) {
	signalsSkipped.WithLabelValues(reason).Inc()
}

func recordPassDuration(d time.Duration) {
	passDuration.Observe(d.Seconds())
}

func recordPassCandidates(count int) {
	passCandidates.Set(float64(count))
}

func recordTickSkipped() {
	ticksSkipped.Inc()
}
