package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sosengine"

var notificationsSent = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "sent_total",
		Help:      "Total notifications dispatched by sender, kind and outcome",
	},
	[]string{"sender", "kind", "status"},
)

func recordNotification(sender, kind, status string) {
	notificationsSent.WithLabelValues(sender, kind, status).Inc()
}
