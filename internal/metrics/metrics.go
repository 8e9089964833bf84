// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clickguard"

var (
	BeaconsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "beacons_total",
		Help:      "Tracking beacons processed, by outcome.",
	}, []string{"outcome"})

	ThreatLevelsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "visitor_threat_levels_total",
		Help:      "Persisted visitor events, by threat level.",
	}, []string{"level"})

	GeoLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geo_lookups_total",
		Help:      "Geo enrichment attempts, by outcome.",
	}, []string{"outcome"})

	AutoBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auto_blocks_total",
		Help:      "IP addresses blocked automatically by the scorer.",
	})

	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "domain_verifications_total",
		Help:      "Domain ownership verification attempts, by outcome.",
	}, []string{"outcome"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
