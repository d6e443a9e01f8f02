package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeLeases = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vms_coordinator_active_leases",
		Help: "Number of currently active leases, by kind.",
	}, []string{"kind"})

	leaseOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vms_coordinator_lease_ops_total",
		Help: "Lease operations by op and outcome.",
	}, []string{"op", "outcome"})

	forwardedRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vms_coordinator_forwarded_requests_total",
		Help: "Requests forwarded from a follower to the leader, by outcome.",
	}, []string{"outcome"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vms_coordinator_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status_class"})
)
