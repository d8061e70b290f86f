package collector

import "github.com/filemesh/go-filemesh/metrics"

const subsystem = "collector"

var (
	traversals = metrics.NewCounter(
		"traversals",
		subsystem,
		"Number of started queue traversals",
		[]string{},
	).WithLabelValues()
	passes = metrics.NewCounter(
		"passes",
		subsystem,
		"Number of times traversal wrapped around the end of the queue",
		[]string{},
	).WithLabelValues()
	suspensions = metrics.NewCounter(
		"suspensions",
		subsystem,
		"Number of times traversal waited for admission",
		[]string{},
	).WithLabelValues()
	downloadsStarted = metrics.NewCounter(
		"downloads",
		subsystem,
		"Number of requested downloads",
		[]string{"kind"},
	)
	downloadsFailed = metrics.NewCounter(
		"failed_downloads",
		subsystem,
		"Number of failed downloads",
		[]string{},
	).WithLabelValues()
	backoffs = metrics.NewCounter(
		"backoffs",
		subsystem,
		"Number of scheduled restarts after failed downloads",
		[]string{},
	).WithLabelValues()
)
