package sql

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/filemesh/go-filemesh/metrics"
)

const (
	subsystem = "database"

	outcomeCommit   = "commit"
	outcomeRollback = "rollback"
)

var (
	// queryDuration in nanoseconds, recorded only if latency metering is enabled.
	queryDuration = metrics.NewHistogramWithBuckets(
		"query_duration",
		subsystem,
		"Duration of the query in nanoseconds",
		[]string{"query"},
		prometheus.ExponentialBuckets(100_000, 2, 20),
	)
	transactions = metrics.NewCounter(
		"transactions",
		subsystem,
		"Number of finished transactions",
		[]string{"outcome"},
	)
)
