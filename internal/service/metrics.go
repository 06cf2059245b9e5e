package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IdentityMetrics identify 调用的 prometheus 指标
type IdentityMetrics struct {
	Requests *prometheus.CounterVec
	Latency  prometheus.Histogram
	Demoted  prometheus.Counter
}

// NewIdentityMetrics creates the collectors and registers them on reg when reg is not nil.
func NewIdentityMetrics(reg prometheus.Registerer) *IdentityMetrics {
	m := &IdentityMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contact_identity",
			Name:      "identify_requests_total",
			Help:      "Identify calls by outcome.",
		}, []string{"outcome"}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "contact_identity",
			Name:      "identify_duration_seconds",
			Help:      "Identify latency including write queue wait.",
			Buckets:   prometheus.DefBuckets,
		}),
		Demoted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "contact_identity",
			Name:      "primaries_demoted_total",
			Help:      "Primary contacts demoted by merges.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Latency, m.Demoted)
	}
	return m
}
