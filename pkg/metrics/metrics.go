package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	StoreCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "printloom", Name: "store_commits_total", Help: "Number of committed document writes by collection."},
		[]string{"collection"},
	)
	StoreConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "printloom", Name: "store_conflicts_total", Help: "Number of writes rejected by version races, by collection."},
		[]string{"collection"},
	)
	PublishSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "printloom", Name: "publish_steps_total", Help: "Number of orchestrator steps by command and outcome."},
		[]string{"command", "outcome"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "printloom", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "printloom", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(StoreCommits)
	reg.MustRegister(StoreConflicts)
	reg.MustRegister(PublishSteps)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
