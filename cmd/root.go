package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/audiosessions/cmd/config"
	"github.com/tphakala/audiosessions/cmd/devices"
	"github.com/tphakala/audiosessions/cmd/monitor"
	"github.com/tphakala/audiosessions/cmd/snapshot"
	"github.com/tphakala/audiosessions/internal/buildinfo"
	"github.com/tphakala/audiosessions/internal/conf"
	"github.com/tphakala/audiosessions/internal/errors"
	"github.com/tphakala/audiosessions/internal/logger"
)

// RootCommand creates and returns the root command. Settings are loaded in
// PersistentPreRunE so every subcommand sees the file, environment and flag
// values merged.
func RootCommand(info buildinfo.Info) *cobra.Command {
	settings := conf.Defaults()
	var (
		configFile string
		debug      bool
		central    *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:          "audiosessions",
		Short:        "Per-device audio session aggregation",
		Version:      info.String(),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")

	rootCmd.AddCommand(
		monitor.Command(settings),
		devices.Command(settings),
		snapshot.Command(settings),
		config.Command(),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// config init writes a file and must work without one
		if cmd.Parent() != nil && cmd.Parent().Name() == "config" {
			return nil
		}

		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		if debug {
			loaded.Debug = true
			loaded.Logging.DefaultLevel = "debug"
		}
		loaded.Version = info.Version
		*settings = *loaded

		central, err = logger.NewCentralLogger(&settings.Logging)
		if err != nil {
			return err
		}
		logger.SetGlobal(central)

		if settings.Sentry.Enabled {
			if err := errors.InitSentry(errors.SentryConfig{
				DSN:         settings.Sentry.DSN,
				Environment: settings.Sentry.Environment,
				Release:     info.Version,
				SampleRate:  settings.Sentry.SampleRate,
			}); err != nil {
				logger.Global().Module("main").Warn("Sentry initialization failed", logger.Error(err))
			}
		}
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if central == nil {
			return nil
		}
		return central.Close()
	}

	return rootCmd
}
