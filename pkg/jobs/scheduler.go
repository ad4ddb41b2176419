package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/knpiano/knbatch/pkg/logger"
	"github.com/knpiano/knbatch/pkg/metrics"
	"github.com/knpiano/knbatch/pkg/models"
)

// DefaultDrainTimeout bounds how long Stop waits for in-flight runs
const DefaultDrainTimeout = 30 * time.Second

// Runner executes one run. *Executor satisfies it.
type Runner interface {
	Execute(ctx context.Context, rc models.RunContext) (models.ExecutionResult, error)
}

// SchedulerConfig holds scheduler tuning
type SchedulerConfig struct {
	PoolSize     int
	DrainTimeout time.Duration
	Location     *time.Location
	Describer    *CronDescriber
	Metrics      metrics.Sink
	Clock        func() time.Time
}

// EntryInfo describes one registered timer
type EntryInfo struct {
	JobID           string    `json:"job_id"`
	Description     string    `json:"description"`
	CronExpression  string    `json:"cron_expression"`
	CronDescription string    `json:"cron_description"`
	NextRun         time.Time `json:"next_run,omitempty"`
	PreviousRun     time.Time `json:"previous_run,omitempty"`
}

type scheduledEntry struct {
	id  cron.EntryID
	def models.JobDefinition
}

// Scheduler fires one cron timer per scheduled job definition and hands every
// fire to a shared bounded worker pool.
type Scheduler struct {
	cron      *cron.Cron
	pool      *WorkerPool
	runner    Runner
	describer *CronDescriber
	metrics   metrics.Sink
	logger    *logger.Logger
	clock     func() time.Time
	location  *time.Location

	drainTimeout time.Duration

	// fires waiting for a pool slot give up when waitCtx ends
	waitCtx    context.Context
	cancelWait context.CancelFunc

	mu      sync.Mutex
	entries []scheduledEntry
}

// NewScheduler creates a stopped scheduler that runs fires through runner
func NewScheduler(runner Runner, cfg SchedulerConfig, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("scheduler")

	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.Describer == nil {
		cfg.Describer = NewCronDescriber(nil)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopSink()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	cronLogger := logger.NewCronLogger(log)
	waitCtx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		pool:         NewWorkerPool(cfg.PoolSize),
		runner:       runner,
		describer:    cfg.Describer,
		metrics:      cfg.Metrics,
		logger:       log,
		clock:        cfg.Clock,
		location:     cfg.Location,
		drainTimeout: cfg.DrainTimeout,
		waitCtx:      waitCtx,
		cancelWait:   cancel,
	}
}

// Register adds a timer for def
func (s *Scheduler) Register(def models.JobDefinition) error {
	if !def.IsScheduled() {
		return fmt.Errorf("job %s has no cron expression", def.ID)
	}

	sched, err := ParseSchedule(def.CronExpression)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", def.ID, err)
	}

	id := s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(def) }))

	s.mu.Lock()
	s.entries = append(s.entries, scheduledEntry{id: id, def: def})
	s.mu.Unlock()

	s.logger.Info().
		Str("action", "register_job").
		Str("job_id", def.ID).
		Str("description", def.Description).
		Str("schedule", def.CronExpression).
		Str("schedule_text", s.describeDef(def)).
		Msg("Registered scheduled job")
	return nil
}

// RegisterAll registers every scheduled job of registry. A definition whose
// expression does not parse is logged and skipped; the others still register.
// It returns the number of timers registered.
func (s *Scheduler) RegisterAll(registry *Registry) int {
	registered := 0
	for _, def := range registry.GetScheduledJobs() {
		if err := s.Register(def); err != nil {
			s.logger.Error().
				Err(err).
				Str("action", "register_job_failed").
				Str("job_id", def.ID).
				Str("schedule", def.CronExpression).
				Msg("Skipping job with invalid schedule")
			continue
		}
		registered++
	}

	s.logger.Info().
		Str("action", "register_complete").
		Int("scheduled_jobs", registered).
		Int("enabled_jobs", registry.Count()).
		Msg("Scheduled job registration complete")
	return registered
}

// Start begins firing timers
func (s *Scheduler) Start() {
	s.mu.Lock()
	count := len(s.entries)
	s.mu.Unlock()

	s.logger.Info().
		Str("action", "start").
		Int("job_count", count).
		Int("pool_size", s.pool.Size()).
		Str("time_zone", s.location.String()).
		Msg("Starting batch scheduler")
	s.cron.Start()
}

// Stop stops firing timers, abandons fires still waiting for a worker slot and
// waits up to the drain timeout for in-flight runs. It reports whether every
// run finished in time.
func (s *Scheduler) Stop() bool {
	s.logger.Info().Str("action", "stop").Msg("Stopping batch scheduler...")

	done := s.cron.Stop()
	s.cancelWait()

	timer := time.NewTimer(s.drainTimeout)
	defer timer.Stop()

	select {
	case <-done.Done():
		s.logger.Info().Str("action", "stopped").Msg("Batch scheduler stopped")
		return true
	case <-timer.C:
		s.logger.Warn().
			Str("action", "drain_timeout").
			Int("in_flight", s.pool.InFlight()).
			Dur("drain_timeout", s.drainTimeout).
			Msg("Runs still in flight after drain timeout; abandoning them")
		return false
	}
}

// Entries lists the registered timers ordered by job id
func (s *Scheduler) Entries() []EntryInfo {
	s.mu.Lock()
	entries := append([]scheduledEntry(nil), s.entries...)
	s.mu.Unlock()

	out := make([]EntryInfo, 0, len(entries))
	for _, e := range entries {
		info := EntryInfo{
			JobID:           e.def.ID,
			Description:     e.def.Description,
			CronExpression:  e.def.CronExpression,
			CronDescription: s.describeDef(e.def),
		}
		if entry := s.cron.Entry(e.id); entry.Valid() {
			info.NextRun = entry.Next
			info.PreviousRun = entry.Prev
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out
}

// Pool exposes the worker pool for status reporting
func (s *Scheduler) Pool() *WorkerPool {
	return s.pool
}

func (s *Scheduler) describeDef(def models.JobDefinition) string {
	if def.CronDescription != "" {
		return def.CronDescription
	}
	return s.describer.Describe(def.CronExpression)
}

// fire is the timer action. Whatever happens inside stays inside: errors and
// panics are logged and counted here and never reach cron or other entries.
func (s *Scheduler) fire(def models.JobDefinition) {
	rc := NewScheduledContext(def.ID, s.clock().In(s.location))
	log := s.logger.WithJob(def.ID, string(rc.Mode)).WithRunID(rc.RunID)

	s.metrics.SchedulerFired(def.ID)

	defer func() {
		if r := recover(); r != nil {
			s.metrics.SchedulerFireFailed(def.ID)
			log.Error().
				Str("action", "fire_panic").
				Interface("panic", r).
				Msg("Scheduled run panicked")
		}
		s.reportPool()
	}()

	s.reportPool()
	err := s.pool.Do(s.waitCtx, func() {
		s.reportPool()

		// runs are not tied to the scheduler lifecycle; shutdown never cancels them
		if _, err := s.runner.Execute(context.Background(), rc); err != nil {
			s.metrics.SchedulerFireFailed(def.ID)
			log.Error().
				Err(err).
				Str("action", "fire_failed").
				Msg("Scheduled run failed")
		}
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("action", "fire_abandoned").
			Msg("Scheduler stopped before a worker slot became free")
	}
}

func (s *Scheduler) reportPool() {
	s.metrics.PoolUsage(s.pool.InFlight(), s.pool.Waiting())
}
