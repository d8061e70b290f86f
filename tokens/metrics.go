package tokens

import "github.com/filemesh/go-filemesh/metrics"

const subsystem = "tokens"

var (
	inUse = metrics.NewGauge(
		"in_use",
		subsystem,
		"Number of tokens in use",
		[]string{"category"},
	)
	exhausted = metrics.NewCounter(
		"exhausted",
		subsystem,
		"Number of failed attempts to acquire a token",
		[]string{"category"},
	)
)
