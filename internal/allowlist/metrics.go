package allowlist

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AllowlistSize tracks the number of tradeable markets.
var AllowlistSize = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "polysentry_allowlist_markets",
	Help: "Number of markets on the tradeable allowlist",
})
