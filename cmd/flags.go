package cmd

import (
	"github.com/spf13/pflag"

	"github.com/filemesh/go-filemesh/config"
)

// AddFlags adds flags for the node configuration to flagSet. Returns the location
// of the config file that is set after flags are parsed.
func AddFlags(flagSet *pflag.FlagSet, cfg *config.Config) (configPath *string) {
	configPath = flagSet.StringP("config", "c", "", "load configuration from file")

	/** ======================== BaseConfig Flags ========================== **/
	flagSet.StringVarP(&cfg.DataDirParent, "data-folder", "d",
		cfg.DataDirParent, "specify data directory for filemesh")
	flagSet.IntVar(&cfg.DatabaseConnections, "db-connections",
		cfg.DatabaseConnections, "number of database connections")
	flagSet.BoolVar(&cfg.DatabaseLatencyMetering, "db-latency-metering",
		cfg.DatabaseLatencyMetering, "collect query latency metrics")
	flagSet.IntVar(&cfg.SenderCacheSize, "sender-cache-size",
		cfg.SenderCacheSize, "number of sender filters cached per store")
	flagSet.IntVar(&cfg.DownloadRequests, "download-requests",
		cfg.DownloadRequests, "fetch attempts allowed per download interval, 0 disables the limit")
	flagSet.DurationVar(&cfg.DownloadInterval, "download-interval",
		cfg.DownloadInterval, "interval for download-requests")
	flagSet.BoolVar(&cfg.CollectMetrics, "metrics",
		cfg.CollectMetrics, "collect node metrics")
	flagSet.IntVar(&cfg.MetricsPort, "metrics-port",
		cfg.MetricsPort, "metric server port")
	flagSet.StringVar(&cfg.MetricsPush, "metrics-push",
		cfg.MetricsPush, "push metrics to url")
	flagSet.DurationVar(&cfg.MetricsPushPeriod, "metrics-push-period",
		cfg.MetricsPushPeriod, "push period")

	/** ======================== Logging Flags ========================== **/
	flagSet.StringVar(&cfg.LOGGING.Encoder, "log-encoder",
		cfg.LOGGING.Encoder, "log encoder, console or json")

	/** ======================== Collector Flags ========================== **/
	flagSet.IntVar(&cfg.Collector.PageSize, "collector-page-size",
		cfg.Collector.PageSize, "number of queue entries read at once")
	flagSet.DurationVar(&cfg.Collector.BackoffInitial, "collector-backoff-initial",
		cfg.Collector.BackoffInitial, "delay before collection is restarted after a failed download")
	flagSet.DurationVar(&cfg.Collector.BackoffMax, "collector-backoff-max",
		cfg.Collector.BackoffMax, "max delay before collection is restarted after a failed download")

	/** ======================== Tokens Flags ========================== **/
	flagSet.Int64Var(&cfg.Tokens.Metadata, "tokens-metadata",
		cfg.Tokens.Metadata, "max concurrent metadata downloads")
	flagSet.Int64Var(&cfg.Tokens.Content, "tokens-content",
		cfg.Tokens.Content, "max concurrent content downloads")

	return configPath
}
