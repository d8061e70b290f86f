package eventloop

import "github.com/filemesh/go-filemesh/metrics"

const subsystem = "eventloop"

var (
	pendingTasks = metrics.NewGauge(
		"pending_tasks",
		subsystem,
		"Number of tasks waiting for execution",
		[]string{},
	).WithLabelValues()
	executedTasks = metrics.NewCounter(
		"executed_tasks",
		subsystem,
		"Number of executed tasks",
		[]string{},
	).WithLabelValues()
)
