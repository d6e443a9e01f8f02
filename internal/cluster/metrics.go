package cluster

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// electionCount is the "leader-election counter" metric family required
// by spec.md §6 ("Health and observability").
var electionCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "vms_cluster_leader_elections_total",
	Help: "Number of times this node has become leader.",
})
