package jobs

import (
	"context"

	"github.com/knpiano/knbatch/pkg/logger"
	"github.com/knpiano/knbatch/pkg/models"
)

// LogObserver writes one structured line before and after every run
type LogObserver struct {
	log *logger.Logger
}

// NewLogObserver creates a run listener logging to log
func NewLogObserver(log *logger.Logger) *LogObserver {
	if log == nil {
		log = logger.Nop()
	}
	return &LogObserver{log: log.WithComponent("run-listener")}
}

func (o *LogObserver) BeforeRun(_ context.Context, rc models.RunContext) {
	o.log.Info().
		Str("action", "before_run").
		Str("job_id", rc.JobID).
		Str("business_module", rc.BusinessModule).
		Str("job_mode", string(rc.Mode)).
		Str("base_date", rc.BaseDate).
		Str("run_id", rc.RunID).
		Time("triggered_at", rc.TriggeredAt).
		Msg("Batch job starting")
}

func (o *LogObserver) AfterRun(_ context.Context, rc models.RunContext, result models.ExecutionResult) {
	event := o.log.Info()
	if result.Status == models.StatusFailed {
		event = o.log.Error().Strs("failure_causes", result.FailureCauses)
	}

	event.
		Str("action", "after_run").
		Str("job_id", rc.JobID).
		Str("job_mode", string(rc.Mode)).
		Str("base_date", rc.BaseDate).
		Str("run_id", rc.RunID).
		Str("status", string(result.Status)).
		Dur("duration", result.Duration()).
		Int64("read_count", result.ReadCount).
		Int64("write_count", result.WriteCount).
		Msg("Batch job finished")
}
