package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RouteDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_engine_route_decisions_total",
			Help: "Routing decisions by protocol, vendor and primary capability",
		},
		[]string{"protocol", "vendor", "capability"},
	)

	UnsatisfiedSkills = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_engine_unsatisfied_skills_total",
			Help: "Capability requirements whose skills the tenant has not installed",
		},
		[]string{"capability", "skill"},
	)

	Resolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_engine_resolutions_total",
			Help: "Vendor resolutions by outcome (hit, none, error)",
		},
		[]string{"outcome"},
	)

	HealthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "route_engine_health_score",
			Help: "Last known health score per provider key and model",
		},
		[]string{"provider_key_id", "model"},
	)

	FallbackOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_engine_fallback_outcomes_total",
			Help: "getNextFallback outcomes by chain and result",
		},
		[]string{"chain_id", "result"},
	)

	ActiveFallbackContexts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "route_engine_active_fallback_contexts",
			Help: "Number of fallback contexts currently held",
		},
	)

	CacheSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_engine_cache_evictions_total",
			Help: "Entries removed by the periodic sweep",
		},
		[]string{"kind"},
	)
)
