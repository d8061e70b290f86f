package downloads

import "github.com/filemesh/go-filemesh/metrics"

const subsystem = "downloads"

var (
	started = metrics.NewCounter(
		"started",
		subsystem,
		"Number of started downloads",
		[]string{},
	).WithLabelValues()
	joined = metrics.NewCounter(
		"joined",
		subsystem,
		"Number of requests that joined an ongoing download",
		[]string{},
	).WithLabelValues()
	failed = metrics.NewCounter(
		"failed",
		subsystem,
		"Number of failed downloads",
		[]string{},
	).WithLabelValues()
	fetched = metrics.NewCounter(
		"fetch_attempts",
		subsystem,
		"Number of attempts to fetch a component from a device",
		[]string{"outcome"},
	)
)
