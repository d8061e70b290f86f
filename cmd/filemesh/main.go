package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/filemesh/go-filemesh/cmd"
	"github.com/filemesh/go-filemesh/config"
	"github.com/filemesh/go-filemesh/log"
	"github.com/filemesh/go-filemesh/node"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	conf := config.DefaultConfig()
	var (
		configPath *string
		level      string
	)
	configure := func(c *cobra.Command) error {
		if err := cmd.Configure(c, *configPath, &conf); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if level != "" {
			conf.LOGGING.SetLevel(level)
		}
		return nil
	}
	c := &cobra.Command{
		Use:   "filemesh",
		Short: "start filemesh node",
		RunE: func(c *cobra.Command, args []string) error {
			if err := configure(c); err != nil {
				return err
			}
			// root logger is at the lowest level, modules are limited by their configured level
			logger, err := log.New("node", zapcore.DebugLevel.String(), conf.LOGGING.Encoder)
			if err != nil {
				return err
			}
			app := node.New(
				node.WithConfig(&conf),
				node.WithLog(logger),
			)
			// os.Interrupt for all systems, syscall.SIGTERM is mainly for docker.
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// Don't print usage on error from this point forward
			c.SilenceUsage = true
			return app.Run(ctx)
		},
	}
	configPath = cmd.AddFlags(c.PersistentFlags(), &conf)
	c.PersistentFlags().StringVar(&level, "log-level", "", "override log level of every module")

	c.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(c *cobra.Command, args []string) {
			fmt.Fprintln(c.OutOrStdout(), cmd.Version)
		},
	})
	c.AddCommand(storeCommand(&conf, configure))
	c.AddCommand(learnCommand(&conf, configure))
	c.AddCommand(inspectCommand(&conf, configure))
	return c
}
