package disasters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sosengine"

var disastersSynthesized = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "disasters",
		Name:      "synthesized_total",
		Help:      "Total disasters auto-created from signal clusters",
	},
	[]string{"type", "severity"},
)

func recordDisasterSynthesized(disasterType, severity string) {
	disastersSynthesized.WithLabelValues(disasterType, severity).Inc()
}
