// Package monitoring exposes the agent's Prometheus metric set.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus series the agent publishes.
type Metrics struct {
	HeartbeatCycles    prometheus.Counter
	HeartbeatDuration  prometheus.Histogram
	PoolsByStatus      *prometheus.GaugeVec
	Transitions        *prometheus.CounterVec
	Resolutions        *prometheus.CounterVec
	ChainWrites        *prometheus.CounterVec
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	SocialPosts        *prometheus.CounterVec
	SocialSuppressed   prometheus.Counter
	CommerceJobs       *prometheus.CounterVec
	SuspensionActive   prometheus.Gauge
}

// New registers and returns the metric set.
func New() *Metrics {
	return &Metrics{
		HeartbeatCycles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agent_heartbeat_cycles_total",
			Help: "Completed heartbeat cycles",
		}),
		HeartbeatDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_heartbeat_duration_seconds",
			Help:    "Wall time of a full heartbeat",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		PoolsByStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agent_pools",
			Help: "Registry pools by lifecycle phase",
		}, []string{"variant", "status"}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_pool_transitions_total",
			Help: "Observed pool phase transitions",
		}, []string{"variant", "from", "to"}),
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_resolutions_total",
			Help: "Pool resolutions by outcome and path",
		}, []string{"outcome", "path"}),
		ChainWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_chain_writes_total",
			Help: "Chain write transactions by method and result",
		}, []string{"method", "result"}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agent_read_cache_hits_total",
			Help: "Pool read cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agent_read_cache_misses_total",
			Help: "Pool read cache misses",
		}),
		SocialPosts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_social_posts_total",
			Help: "Outbound social writes by kind and result",
		}, []string{"kind", "result"}),
		SocialSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agent_social_suppressed_total",
			Help: "Outbound posts suppressed as duplicates",
		}),
		CommerceJobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_commerce_jobs_total",
			Help: "Commerce jobs by terminal status",
		}, []string{"status"}),
		SuspensionActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "agent_social_suspension_active",
			Help: "1 while social writes are suspended",
		}),
	}
}
