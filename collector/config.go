package collector

import "time"

// Config for the collector of a single store.
type Config struct {
	// PageSize is the number of queue entries that are fetched at once.
	PageSize int `mapstructure:"page-size"`
	// DiscardBatch is the number of skipped entries that are deleted from the queue at once.
	DiscardBatch int `mapstructure:"discard-batch"`
	// CachePages limits the number of pages kept in memory between traversals.
	CachePages int `mapstructure:"cache-pages"`

	// BackoffInitial is the delay before restart after the first failed download.
	BackoffInitial time.Duration `mapstructure:"backoff-initial"`
	// BackoffMax caps the delay before restart.
	BackoffMax time.Duration `mapstructure:"backoff-max"`
}

// DefaultConfig returns default configuration for the collector.
func DefaultConfig() Config {
	return Config{
		PageSize:       100,
		DiscardBatch:   100,
		CachePages:     10,
		BackoffInitial: 2 * time.Second,
		BackoffMax:     5 * time.Minute,
	}
}
