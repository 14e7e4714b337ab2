package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the ledger
type Metrics struct {
	VersionCommits  *prometheus.CounterVec
	CommitConflicts prometheus.Counter
	CommitLatency   prometheus.Histogram
	SessionsCreated prometheus.Counter
	BranchesCreated prometheus.Counter
	Reverts         prometheus.Counter
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		// Version commits by change type (counter - only goes up)
		VersionCommits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "luna_version_commits_total",
			Help: "Total number of version commits by change type",
		}, []string{"change_type"}),

		// Commits lost to a concurrent writer on the same session
		CommitConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "luna_version_commit_conflicts_total",
			Help: "Total number of version commits rejected by the totalVersions compare-and-swap",
		}),

		// Commit latency histogram
		CommitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "luna_version_commit_duration_seconds",
			Help:    "Version commit latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),

		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "luna_sessions_created_total",
			Help: "Total number of sessions created",
		}),

		BranchesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "luna_branches_created_total",
			Help: "Total number of sessions forked from a historical version",
		}),

		Reverts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "luna_reverts_total",
			Help: "Total number of revert versions created",
		}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance (nil until InitMetrics)
func GetMetrics() *Metrics {
	return globalMetrics
}
