// Package config contains filemesh node configuration definitions.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/filemesh/go-filemesh/collector"
	"github.com/filemesh/go-filemesh/retry"
	"github.com/filemesh/go-filemesh/tokens"
)

const (
	defaultConfigFileName = "./config.toml"
	defaultDataDirName    = "filemesh"
	// DatabaseFile is the name of the database file in the data directory.
	DatabaseFile = "state.sql"
)

var defaultDataDir = filepath.Join(homeDir(), defaultDataDirName)

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// Config defines the top level configuration for a filemesh node.
type Config struct {
	BaseConfig `mapstructure:"main"`
	Collector  collector.Config `mapstructure:"collector"`
	Retry      retry.Config     `mapstructure:"retry"`
	Tokens     tokens.Config    `mapstructure:"tokens"`
	LOGGING    LoggerConfig     `mapstructure:"logging"`
}

// DataDir returns the absolute path to use for the node's data.
func (cfg *Config) DataDir() string {
	dir := cfg.DataDirParent
	if strings.HasPrefix(dir, "~") {
		dir = filepath.Join(homeDir(), strings.TrimPrefix(dir, "~"))
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Clean(dir)
	}
	return abs
}

// DatabasePath returns location of the database file.
func (cfg *Config) DatabasePath() string {
	return filepath.Join(cfg.DataDir(), DatabaseFile)
}

// BaseConfig defines the default configuration options for filemesh node.
type BaseConfig struct {
	DataDirParent string `mapstructure:"data-folder"`
	ConfigFile    string `mapstructure:"config"`

	DatabaseConnections     int  `mapstructure:"db-connections"`
	DatabaseLatencyMetering bool `mapstructure:"db-latency-metering"`

	// SenderCacheSize is the number of sender filters kept in memory per store.
	SenderCacheSize int `mapstructure:"sender-cache-size"`

	// DownloadRequests limits fetch attempts per DownloadInterval. Zero disables the limit.
	DownloadRequests int           `mapstructure:"download-requests"`
	DownloadInterval time.Duration `mapstructure:"download-interval"`

	CollectMetrics    bool          `mapstructure:"metrics"`
	MetricsPort       int           `mapstructure:"metrics-port"`
	MetricsPush       string        `mapstructure:"metrics-push"`
	MetricsPushPeriod time.Duration `mapstructure:"metrics-push-period"`
}

// DefaultConfig returns the default configuration for a filemesh node.
func DefaultConfig() Config {
	return Config{
		BaseConfig: defaultBaseConfig(),
		Collector:  collector.DefaultConfig(),
		Retry:      retry.DefaultConfig(),
		Tokens:     tokens.DefaultConfig(),
		LOGGING:    defaultLoggingConfig(),
	}
}

func defaultBaseConfig() BaseConfig {
	return BaseConfig{
		DataDirParent:       defaultDataDir,
		ConfigFile:          defaultConfigFileName,
		DatabaseConnections: 16,
		SenderCacheSize:     64,
		DownloadRequests:    100,
		DownloadInterval:    time.Second,
		MetricsPort:         1010,
		MetricsPushPeriod:   60 * time.Second,
	}
}

// LoadConfig reads config file into viper. If file at fileLocation can't be read
// the default config file is attempted.
func LoadConfig(fileLocation string, vip *viper.Viper) error {
	if fileLocation == "" {
		fileLocation = defaultConfigFileName
	}
	vip.SetConfigFile(fileLocation)
	err := vip.ReadInConfig()
	if err != nil && fileLocation != defaultConfigFileName {
		vip.SetConfigFile(defaultConfigFileName)
		err = vip.ReadInConfig()
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %w", err)
	}
	return nil
}

// Decode overrides defaults in conf with values loaded into viper.
func Decode(vip *viper.Viper, conf *Config) error {
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
	opts := []viper.DecoderConfigOption{
		viper.DecodeHook(hook),
		withIgnoreUntagged(),
		withErrorUnused(),
	}
	if err := vip.Unmarshal(conf, opts...); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func withIgnoreUntagged() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.IgnoreUntaggedFields = true
	}
}

func withErrorUnused() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.ErrorUnused = true
	}
}
