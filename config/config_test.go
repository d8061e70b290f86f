package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	vip := viper.New()
	err := LoadConfig(".asdasda", vip)
	require.ErrorContains(t, err, "failed to read config file open ./config.toml")
}

func TestDecodeOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[main]
data-folder = "/tmp/filemesh"
metrics-push-period = "10s"

[collector]
page-size = 7
backoff-initial = "1s"

[tokens]
content = 2

[logging]
collector = "debug"
`), 0o600))

	vip := viper.New()
	require.NoError(t, LoadConfig(path, vip))
	conf := DefaultConfig()
	require.NoError(t, Decode(vip, &conf))

	expected := DefaultConfig()
	expected.DataDirParent = "/tmp/filemesh"
	expected.MetricsPushPeriod = 10 * time.Second
	expected.Collector.PageSize = 7
	expected.Collector.BackoffInitial = time.Second
	expected.Tokens.Content = 2
	expected.LOGGING.CollectorLoggerLevel = "debug"
	if diff := cmp.Diff(expected, conf); diff != "" {
		t.Errorf("decoded config mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, filepath.Join("/tmp/filemesh", DatabaseFile), conf.DatabasePath())
}

func TestSetLevel(t *testing.T) {
	conf := DefaultConfig()
	conf.LOGGING.SetLevel("warn")
	require.Equal(t, "warn", conf.LOGGING.AppLoggerLevel)
	require.Equal(t, "warn", conf.LOGGING.EventLoopLoggerLevel)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[collector]
page-sise = 7
`), 0o600))

	vip := viper.New()
	require.NoError(t, LoadConfig(path, vip))
	conf := DefaultConfig()
	require.ErrorContains(t, Decode(vip, &conf), "page-sise")
}
