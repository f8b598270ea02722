// Package app holds the explicitly constructed dependencies shared by the CLI
// commands and the web handlers. Nothing here is a process global: commands
// build a Context, pass it down, and close it when done.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rewired-gh/forecastkit/internal/config"
	"github.com/rewired-gh/forecastkit/internal/covid"
	"github.com/rewired-gh/forecastkit/internal/export"
	"github.com/rewired-gh/forecastkit/internal/flight"
	"github.com/rewired-gh/forecastkit/internal/forecast"
	"github.com/rewired-gh/forecastkit/internal/logger"
	"github.com/rewired-gh/forecastkit/internal/models"
	"github.com/rewired-gh/forecastkit/internal/notify"
	"github.com/rewired-gh/forecastkit/internal/storage"
)

// Context is read-only after construction. The dataset cache behind Loader
// synchronises itself.
type Context struct {
	Config    *config.Config
	Fares     *flight.Runner
	Chain     *forecast.Chain
	Horizons  *forecast.Preparer
	Loader    *covid.Loader
	Store     *storage.Storage
	Notifiers []notify.Notifier

	closers []io.Closer
}

// New wires every dependency from cfg. A missing flight model is not an error;
// fare predictions report ModelUnavailableError until one is trained.
func New(ctx context.Context, cfg *config.Config) (*Context, error) {
	chain, err := forecast.ChainFromConfig(cfg.Forecast)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	notifiers, err := notify.FromConfig(cfg.Notify)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize notifiers: %w", err)
	}

	client := covid.NewClient(cfg.Covid.DatasetURL, cfg.Covid.Timeout, cfg.Covid.MaxRetries, cfg.Covid.RetryDelayBase)

	c := &Context{
		Config:    cfg,
		Fares:     flight.NewRunner(cfg.Flight.ModelPath),
		Chain:     chain,
		Horizons:  forecast.PreparerFromConfig(cfg.Forecast),
		Loader:    covid.NewLoader(client, store, cfg.Covid.CacheTTL, cfg.Covid.MinObservations),
		Store:     store,
		Notifiers: notifiers,
		closers:   []io.Closer{store},
	}
	logger.Debug("Application context ready (storage=%s, tiers=%v, notifiers=%d)", store.Driver(), chain.Tiers(), len(notifiers))
	return c, nil
}

// Close releases the storage connection.
func (c *Context) Close() error {
	var errs []error
	for _, cl := range c.closers {
		errs = append(errs, cl.Close())
	}
	return errors.Join(errs...)
}

// ForecastQuery is one forecast request as users phrase it.
type ForecastQuery struct {
	Region       string
	Target       models.Target
	HorizonDays  int
	Seasonal     bool
	LogTransform bool
	Range        covid.DateRange
}

// DefaultQuery fills a query from configuration defaults.
func (c *Context) DefaultQuery() ForecastQuery {
	target, err := models.ParseTarget(c.Config.Covid.DefaultTarget)
	if err != nil {
		target = models.TargetNewCasesSmoothed
	}
	return ForecastQuery{
		Region:      c.Config.Covid.DefaultRegion,
		Target:      target,
		HorizonDays: c.Config.Forecast.DefaultHorizon,
		Seasonal:    true,
	}
}

// Forecast loads the series for q and runs the fallback chain on it.
func (c *Context) Forecast(ctx context.Context, q ForecastQuery) (*models.Series, *models.ForecastResult, error) {
	series, err := c.Loader.Load(ctx, q.Region, q.Target, q.Range)
	if err != nil {
		return nil, nil, err
	}
	result, err := c.ForecastSeries(ctx, series, q)
	if err != nil {
		return series, nil, err
	}
	return series, result, nil
}

// ForecastSeries runs the fallback chain on an already loaded series.
func (c *Context) ForecastSeries(ctx context.Context, series *models.Series, q ForecastQuery) (*models.ForecastResult, error) {
	req := c.Horizons.Prepare(series.Region, series.Target, q.HorizonDays, q.Seasonal, q.LogTransform)
	return c.Chain.Run(ctx, series, req)
}

// RefreshCycle re-downloads cached regions plus the configured ones, then
// forecasts the configured regions and sends one digest. Per-region failures
// are logged and skipped.
func (c *Context) RefreshCycle(ctx context.Context, sinks ...export.Sink) error {
	start := time.Now()
	logger.Info("Starting dataset refresh cycle")

	regions := c.Config.Server.RefreshRegions
	n, err := c.Loader.Refresh(ctx, regions)
	if err != nil {
		return fmt.Errorf("failed to refresh dataset: %w", err)
	}
	logger.Info("Refreshed %d cached regions", n)

	q := c.DefaultQuery()
	var results []*models.ForecastResult
	for _, region := range regions {
		q.Region = region
		_, result, err := c.Forecast(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("Failed to forecast %s: %v", region, err)
			continue
		}
		results = append(results, result)
		for _, sink := range sinks {
			if err := sink.Write(ctx, result); err != nil {
				logger.Warn("Failed to export forecast for %s: %v", region, err)
			}
		}
	}

	if len(results) > 0 && len(c.Notifiers) > 0 {
		if err := notify.SendAll(ctx, c.Notifiers, results); err != nil {
			logger.Warn("Digest delivery incomplete: %v", err)
		}
	}

	logger.Info("Refresh cycle completed in %v (%d forecasts)", time.Since(start), len(results))
	return nil
}
