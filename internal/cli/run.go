package cli

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/knpiano/knbatch/pkg/jobs"
	"github.com/knpiano/knbatch/pkg/models"
)

// runOnce executes a single manual or auto run and returns its classified error
func runOnce(ctx context.Context, f flags, opts Options) error {
	// validated before anything is opened so bad input never reaches a handler
	rc, err := jobs.NewManualContext(f.jobName, f.baseDate, opts.Clock())
	if err != nil {
		return err
	}

	cfg, err := opts.LoadConfig(f.configPath)
	if err != nil {
		return configurationError(err)
	}

	log := opts.Logger
	rt, err := Bootstrap(ctx, cfg, opts.OpenCatalogue, opts.BuildHandlers, log)
	if err != nil {
		log.Error().Err(err).Str("action", "bootstrap_failed").Msg("Cannot start batch run")
		return err
	}
	defer rt.Close()

	if rc.Mode == models.ModeAuto {
		if f.baseDate != "" {
			log.Warn().
				Str("action", "base_date_ignored").
				Str("base_date", f.baseDate).
				Msg("AUTO runs use today's date; --base.date is ignored")
		}
		rc.BaseDate = jobs.FormatBaseDate(rc.TriggeredAt.In(rt.Location))
	}

	fmt.Fprintf(opts.Stdout, "Running %s (mode %s, base date %s, run %s)\n",
		rc.BusinessModule, rc.Mode, rc.BaseDate, rc.RunID)

	result, err := rt.Executor.Execute(ctx, rc)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			return err
		}
		if result.RunID != "" {
			fmt.Fprintf(opts.Stdout, "%s finished: %s in %s\n", result.JobID, result.Status, result.Duration())
		}
		return err
	}

	fmt.Fprintf(opts.Stdout, "%s finished: %s (read %d, written %d) in %s\n",
		result.JobID, result.Status, result.ReadCount, result.WriteCount, result.Duration())
	return nil
}
