package main

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rewired-gh/forecastkit/internal/app"
	"github.com/rewired-gh/forecastkit/internal/export"
	"github.com/rewired-gh/forecastkit/internal/logger"
	"github.com/rewired-gh/forecastkit/internal/web"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr       string
		sinks      []string
		refreshNow bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard and the scheduled dataset refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sc := opts.cfg.Server
			if addr == "" {
				addr = sc.Addr
			}

			return opts.withApp(ctx, func(a *app.Context) error {
				srv, err := web.New(a)
				if err != nil {
					return err
				}

				var open []export.Sink
				defer func() {
					for _, s := range open {
						if err := s.Close(); err != nil {
							logger.Warn("Failed to close export sink: %v", err)
						}
					}
				}()
				for _, dest := range sinks {
					s, err := export.Open(ctx, dest, a.Config.Export)
					if err != nil {
						return err
					}
					open = append(open, s)
				}

				refresh := newRefresher(func() { runRefresh(ctx, a, open) })
				defer refresh.Wait()
				scheduler, err := startRefresh(a, sc.RefreshSchedule, refresh)
				if err != nil {
					return err
				}
				if scheduler != nil {
					defer func() { <-scheduler.Stop().Done() }()
				}
				if refreshNow && len(sc.RefreshRegions) > 0 {
					refresh.Go()
				}

				return srv.ListenAndServe(ctx, addr, sc.ReadTimeout, sc.WriteTimeout)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringArrayVar(&sinks, "sink", nil, "export every scheduled forecast to this sink; repeatable")
	cmd.Flags().BoolVar(&refreshNow, "refresh-now", false, "run one refresh cycle at startup")
	return cmd
}

// refresher runs the refresh job at most once at a time and tracks every
// run, scheduled or not, so sinks can be closed only after Wait returns.
type refresher struct {
	job cron.Job
	wg  sync.WaitGroup
}

func newRefresher(fn func()) *refresher {
	return &refresher{job: cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(cron.FuncJob(fn))}
}

// Run implements cron.Job. A run that overlaps another is skipped.
func (r *refresher) Run() {
	r.wg.Add(1)
	defer r.wg.Done()
	r.job.Run()
}

// Go starts one run in the background.
func (r *refresher) Go() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.job.Run()
	}()
}

// Wait blocks until every started run has returned.
func (r *refresher) Wait() {
	r.wg.Wait()
}

// startRefresh schedules the refresher on the cron expression. An empty
// schedule disables it.
func startRefresh(a *app.Context, schedule string, job cron.Job) (*cron.Cron, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		logger.Info("Scheduled refresh disabled (server.refresh_schedule not set)")
		return nil, nil
	}

	c := cron.New()
	if _, err := c.AddJob(schedule, job); err != nil {
		return nil, err
	}
	c.Start()

	entries := c.Entries()
	if len(entries) > 0 {
		logger.Info("Dataset refresh scheduled (cron: %s, next at %s, regions: %v)",
			schedule, entries[0].Next.Format("Mon Jan 2 15:04"), a.Config.Server.RefreshRegions)
	}
	return c, nil
}

func runRefresh(ctx context.Context, a *app.Context, sinks []export.Sink) {
	if err := a.RefreshCycle(ctx, sinks...); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Error("Refresh cycle failed: %v", err)
	}
}
