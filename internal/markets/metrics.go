package markets

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MarketFetchErrorsTotal tracks Gamma API fetch failures.
	MarketFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polysentry_markets_fetch_errors_total",
		Help: "Total number of market fetch errors",
	})

	// MetadataCacheHitsTotal tracks cache hits for token metadata.
	MetadataCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polysentry_markets_metadata_cache_hits_total",
		Help: "Total number of metadata cache hits",
	})

	// MetadataCacheMissesTotal tracks cache misses for token metadata.
	MetadataCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polysentry_markets_metadata_cache_misses_total",
		Help: "Total number of metadata cache misses",
	})
)
