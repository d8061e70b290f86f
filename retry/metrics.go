package retry

import "github.com/filemesh/go-filemesh/metrics"

var retries = metrics.NewCounter(
	"retries",
	"retry",
	"Number of scheduled retries",
	[]string{"name"},
)
