package senderfilters

import "github.com/filemesh/go-filemesh/metrics"

const subsystem = "sender_filters"

var (
	ignoredUpdates = metrics.NewCounter(
		"ignored_updates",
		subsystem,
		"Number of ignored acknowledgements of sender filters",
		[]string{"reason"},
	)
	merges = metrics.NewCounter(
		"merges",
		subsystem,
		"Number of sender filters merged into their predecessor",
		[]string{},
	).WithLabelValues()
)
