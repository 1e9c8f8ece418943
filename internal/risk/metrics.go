package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts risk decisions by kind and rejection code.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polysentry_risk_decisions_total",
			Help: "Total number of risk decisions",
		},
		[]string{"kind", "code"},
	)

	// KillSwitchTrippedTotal counts kill-switch trips.
	KillSwitchTrippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polysentry_risk_kill_switch_tripped_total",
		Help: "Total number of kill-switch trips",
	})

	// KillSwitchActive is 1 while the kill switch is active.
	KillSwitchActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polysentry_risk_kill_switch_active",
		Help: "Whether the kill switch is active (1) or not (0)",
	})
)

func setKillSwitchMetric(active bool) {
	if active {
		KillSwitchActive.Set(1)
		return
	}
	KillSwitchActive.Set(0)
}
