package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/knpiano/knbatch/pkg/logger"
	"github.com/knpiano/knbatch/pkg/metrics"
	"github.com/knpiano/knbatch/pkg/models"
)

// ExecutorConfig wires the collaborators of an Executor
type ExecutorConfig struct {
	Registry  *Registry
	Store     DefinitionStore
	Handlers  *HandlerRegistry
	Reporter  Reporter
	Observers []Observer
	Metrics   metrics.Sink
	Logger    *logger.Logger
	Clock     func() time.Time
}

// Executor resolves a RunContext to a handler, runs it and reports the outcome.
// It is safe for concurrent use; nothing serializes runs of the same job.
type Executor struct {
	registry  *Registry
	store     DefinitionStore
	handlers  *HandlerRegistry
	reporter  Reporter
	observers []Observer
	metrics   metrics.Sink
	logger    *logger.Logger
	clock     func() time.Time
}

// NewExecutor creates an executor. Registry and Handlers are required.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Registry == nil {
		return nil, configurationErrorf("executor requires a job registry")
	}
	if cfg.Handlers == nil {
		return nil, configurationErrorf("executor requires a handler table")
	}

	e := &Executor{
		registry:  cfg.Registry,
		store:     cfg.Store,
		handlers:  cfg.Handlers,
		reporter:  cfg.Reporter,
		observers: cfg.Observers,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
	}
	if e.reporter == nil {
		e.reporter = nopReporter{}
	}
	if e.metrics == nil {
		e.metrics = metrics.NewNoopSink()
	}
	if e.logger == nil {
		e.logger = logger.Nop()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	return e, nil
}

// Execute runs the job named by rc.BusinessModule once.
//
// Manual and auto contexts that miss the registry are looked up in the store
// again, ignoring the enabled flag; scheduled contexts never are. When the id
// is still unknown, Execute logs the enabled ids and returns an error marked
// ErrJobNotFound without producing a result.
//
// A handler error yields a FAILED result together with an error marked
// ErrHandlerFailure. The reporter is invoked exactly once for every run that
// reached its handler.
func (e *Executor) Execute(ctx context.Context, rc models.RunContext) (models.ExecutionResult, error) {
	log := e.logger.WithJob(rc.BusinessModule, string(rc.Mode)).WithRunID(rc.RunID)

	def, err := e.resolve(ctx, rc, log)
	if err != nil {
		return models.ExecutionResult{}, err
	}

	handler, ok := e.handlers.Lookup(def.HandlerRef)
	if !ok {
		err := configurationErrorf("job %s references unknown handler %q", def.ID, def.HandlerRef)
		log.Error().Err(err).Str("action", "handler_missing").Msg("Cannot run job")
		return models.ExecutionResult{}, err
	}

	return e.run(log.ToContext(ctx), def, handler, rc, log)
}

func (e *Executor) resolve(ctx context.Context, rc models.RunContext, log *logger.Logger) (models.JobDefinition, error) {
	if def, ok := e.registry.GetJobInfo(rc.BusinessModule); ok {
		return def, nil
	}

	if rc.Mode != models.ModeScheduled && e.store != nil {
		log.Info().
			Str("action", "registry_miss").
			Msg("Job not in registry, looking it up in the definition store")

		def, err := e.store.FindJobDefinition(ctx, rc.BusinessModule)
		if err != nil {
			return models.JobDefinition{}, wrapConfiguration(err, "failed to look up job definition")
		}
		if def != nil {
			if !def.Enabled {
				log.Warn().
					Str("action", "run_disabled_job").
					Msg("Running a job that is disabled in the catalogue")
			}
			return *def, nil
		}
	}

	e.metrics.RunNotFound(rc.BusinessModule)
	log.Warn().
		Str("action", "job_not_found").
		Strs("enabled_jobs", e.registry.EnabledJobIDs()).
		Msgf("No job definition found for %s; enabled jobs: %s",
			rc.BusinessModule, strings.Join(e.registry.EnabledJobIDs(), ", "))

	return models.JobDefinition{}, errors.Mark(
		errors.Newf("no job definition found for %s", rc.BusinessModule), ErrJobNotFound)
}

func (e *Executor) run(ctx context.Context, def models.JobDefinition, h Handler, rc models.RunContext, log *logger.Logger) (result models.ExecutionResult, err error) {
	runLog := NewRunLog(log, e.clock)
	result = models.ExecutionResult{
		JobID:     def.ID,
		RunID:     rc.RunID,
		StartedAt: e.clock(),
	}

	defer func() {
		e.report(ctx, def, result, runLog, log)
		for _, o := range e.observers {
			observe(log, "after_run", func() { o.AfterRun(ctx, rc, result) })
		}
	}()

	for _, o := range e.observers {
		observe(log, "before_run", func() { o.BeforeRun(ctx, rc) })
	}

	log.LogJobStart(def.ID, rc.BaseDate)
	runLog.Printf("%s started (mode %s, base date %s)", def.Description, rc.Mode, rc.BaseDate)

	outcome, runErr := invokeHandler(ctx, h, rc, runLog)
	result.EndedAt = e.clock()
	result.ReadCount = outcome.ReadCount
	result.WriteCount = outcome.WriteCount

	switch {
	case runErr != nil:
		result.Status = models.StatusFailed
		result.FailureCauses = failureCauses(runErr)
		err = handlerFailure(runErr, def.ID)
		runLog.Printf("%s failed: %v", def.Description, runErr)
	case outcome.Status == models.StatusFailed:
		runErr = errors.Newf("handler reported %s without an error", models.StatusFailed)
		result.Status = models.StatusFailed
		result.FailureCauses = failureCauses(runErr)
		err = handlerFailure(runErr, def.ID)
		runLog.Printf("%s failed", def.Description)
	case outcome.Status == models.StatusWarning:
		result.Status = models.StatusWarning
		runLog.Printf("%s finished with warnings", def.Description)
	default:
		result.Status = models.StatusCompleted
		runLog.Printf("%s finished", def.Description)
	}

	runLog.Block("execution summary", summaryLines(def, rc, result)...)

	log.LogJobComplete(def.ID, string(result.Status), result.Duration(), result.ReadCount, result.WriteCount)
	e.metrics.RunFinished(def.ID, string(rc.Mode), string(result.Status), result.Duration(), result.ReadCount, result.WriteCount)

	return result, err
}

// invokeHandler runs h, turning a panic into an error
func invokeHandler(ctx context.Context, h Handler, rc models.RunContext, runLog *RunLog) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("handler panicked: %v", r)
		}
	}()
	return h.Execute(ctx, rc, runLog)
}

// report delivers the notification; nothing it does may change the result
func (e *Executor) report(ctx context.Context, def models.JobDefinition, result models.ExecutionResult, runLog *RunLog, log *logger.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("action", "report_panic").
				Interface("panic", r).
				Msg("Reporter panicked")
		}
	}()
	e.reporter.Report(ctx, def.ID, def.Description, result.Succeeded(), runLog.String())
}

// observe runs one observer hook; a panicking observer is logged and skipped
func observe(log *logger.Logger, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("action", "observer_panic").
				Str("hook", hook).
				Interface("panic", r).
				Msg("Run observer panicked")
		}
	}()
	fn()
}

func summaryLines(def models.JobDefinition, rc models.RunContext, result models.ExecutionResult) []string {
	lines := []string{
		fmt.Sprintf("job:         %s (%s)", def.ID, def.Description),
		fmt.Sprintf("mode:        %s", rc.Mode),
		fmt.Sprintf("base date:   %s", rc.BaseDate),
		fmt.Sprintf("run id:      %s", rc.RunID),
		fmt.Sprintf("status:      %s", result.Status),
		fmt.Sprintf("read/write:  %d/%d", result.ReadCount, result.WriteCount),
		fmt.Sprintf("duration:    %s", result.Duration().Round(time.Millisecond)),
	}
	if def.TargetDescription != "" {
		lines = append(lines, fmt.Sprintf("target:      %s", def.TargetDescription))
	}
	for _, cause := range result.FailureCauses {
		lines = append(lines, fmt.Sprintf("cause:       %s", cause))
	}
	return lines
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, string, string, bool, string) {}
