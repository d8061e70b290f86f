// Package cmd is the base package for executables of filemesh.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/filemesh/go-filemesh/config"
	"github.com/filemesh/go-filemesh/log"
)

var (
	// Version is the app's semantic version. Designed to be overwritten by make.
	Version string

	// Branch is the git branch used to build the App. Designed to be overwritten by make.
	Branch string

	// Commit is the git commit used to build the app. Designed to be overwritten by make.
	Commit string
)

// Configure loads config file at configPath into conf. Flags that were set on the command
// line take precedence over values from the file.
func Configure(c *cobra.Command, configPath string, conf *config.Config) error {
	if configPath == "" {
		return nil
	}
	changed := map[string]string{}
	c.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})
	vip := viper.New()
	if err := config.LoadConfig(configPath, vip); err != nil {
		return err
	}
	if err := config.Decode(vip, conf); err != nil {
		return log.ErrMalformedConfig(err)
	}
	for name, value := range changed {
		if err := c.Flags().Set(name, value); err != nil {
			return fmt.Errorf("apply flag %s: %w", name, err)
		}
	}
	return nil
}
