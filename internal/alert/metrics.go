package alert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AlertsSentTotal tracks successfully delivered webhook alerts.
	AlertsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polysentry_alerts_sent_total",
		Help: "Total number of alerts delivered",
	})

	// AlertDeliveryErrorsTotal tracks failed webhook deliveries.
	AlertDeliveryErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polysentry_alert_delivery_errors_total",
		Help: "Total number of alert delivery failures",
	})
)
