package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	paymentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_created_total",
			Help: "Pending tickets created at payment-intent time",
		},
		[]string{"event_id"},
	)

	paymentsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_settled_total",
			Help: "Webhook settlement outcomes",
		},
		[]string{"status"},
	)

	checkIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkins_total",
			Help: "Check-in attempts by scan mode and outcome",
		},
		[]string{"scan_mode", "outcome"},
	)
)

func TrackPaymentCreated(eventID string) {
	paymentsCreated.WithLabelValues(eventID).Inc()
}

func TrackPaymentSettled(status string) {
	paymentsSettled.WithLabelValues(status).Inc()
}

func TrackCheckIn(scanMode, outcome string) {
	checkIns.WithLabelValues(scanMode, outcome).Inc()
}
