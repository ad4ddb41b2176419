package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/knpiano/knbatch/pkg/jobs"
	"github.com/knpiano/knbatch/pkg/server"
)

const (
	bannerTimeLayout = "2006-01-02 15:04:05"
	shutdownTimeout  = 10 * time.Second
)

// runService schedules every enabled job and blocks until ctx ends or the ops
// server dies. Job failures never end the service.
func runService(ctx context.Context, f flags, opts Options) error {
	cfg, err := opts.LoadConfig(f.configPath)
	if err != nil {
		return configurationError(err)
	}

	log := opts.Logger
	rt, err := Bootstrap(ctx, cfg, opts.OpenCatalogue, opts.BuildHandlers, log)
	if err != nil {
		log.Error().Err(err).Str("action", "bootstrap_failed").Msg("Cannot start batch service")
		return err
	}
	defer rt.Close()

	scheduler := jobs.NewScheduler(rt.Executor, jobs.SchedulerConfig{
		PoolSize:     cfg.Scheduler.PoolSize,
		DrainTimeout: cfg.Scheduler.DrainTimeout,
		Location:     rt.Location,
		Describer:    jobs.NewCronDescriber(cfg.CronDescriptionTable()),
		Metrics:      rt.Metrics,
		Clock:        opts.Clock,
	}, log)
	scheduler.RegisterAll(rt.Registry)

	serverErr := make(chan error, 1)
	var srv *server.Server
	if cfg.Server.Enabled {
		srv, err = server.New(server.Config{
			Port:      cfg.Server.Port,
			Catalogue: rt.Registry,
			Timers:    scheduler,
			Location:  rt.Location,
			Gatherer:  rt.Gatherer,
			Probes:    rt.Probes,
		}, log)
		if err != nil {
			return configurationError(err)
		}
		go func() {
			serverErr <- srv.Start()
		}()
	}

	scheduler.Start()
	printBanner(opts.Stdout, opts.Clock().In(rt.Location), rt.Registry.Count(), scheduler.Entries())

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Str("action", "shutdown").Msg("Shutting down batch service...")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Str("action", "server_failed").Msg("Ops server stopped unexpectedly")
			runErr = configurationError(err)
		}
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Ops server did not shut down cleanly")
		}
		cancel()
	}

	if !scheduler.Stop() {
		log.Warn().Str("action", "runs_abandoned").Msg("Some runs were still going at shutdown")
	}
	log.Info().Str("action", "service_stopped").Msg("Batch service stopped")
	return runErr
}

func printBanner(w io.Writer, now time.Time, enabled int, entries []jobs.EntryInfo) {
	fmt.Fprintf(w, "KNPiano batch service started at %s (%s)\n", now.Format(bannerTimeLayout), now.Location())
	fmt.Fprintf(w, "%d enabled jobs, %d timers registered\n", enabled, len(entries))
	if len(entries) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		next := "-"
		if !e.NextRun.IsZero() {
			next = e.NextRun.In(now.Location()).Format(bannerTimeLayout)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\tnext %s\n", e.JobID, e.Description, e.CronDescription, next)
	}
	_ = tw.Flush()
}
