package main

import (
	"context"

	"github.com/rewired-gh/forecastkit/internal/app"
	"github.com/rewired-gh/forecastkit/internal/config"
	"github.com/rewired-gh/forecastkit/internal/logger"
	"github.com/spf13/cobra"
)

// rootOptions carries the loaded configuration from the root command to its
// subcommands.
type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "forecastkit",
		Short: "Flight fare estimates and COVID-19 case forecasts",
		Long: `forecastkit trains and serves a flight fare regression model and forecasts
COVID-19 series from the Our World in Data dataset with a fallback chain of
time-series models.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger.Init(cfg.Logging.Level, cfg.Logging.Format)
			if opts.configPath != "" {
				logger.Debug("Configuration loaded from %s", opts.configPath)
			}
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (defaults and FORECASTKIT_* environment when empty)")

	cmd.AddCommand(
		newTrainCmd(opts),
		newPredictCmd(opts),
		newForecastCmd(opts),
		newRegionsCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

// withApp builds the application context for one command and closes it after.
func (o *rootOptions) withApp(ctx context.Context, fn func(*app.Context) error) error {
	a, err := app.New(ctx, o.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close application context: %v", err)
		}
	}()
	return fn(a)
}
