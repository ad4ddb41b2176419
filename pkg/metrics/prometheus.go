package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/knpiano/knbatch/pkg/logger"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	registeredJobs prometheus.Gauge

	firesTotal      *prometheus.CounterVec
	fireErrorsTotal *prometheus.CounterVec
	poolInFlight    prometheus.Gauge
	poolWaiting     prometheus.Gauge

	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	recordsTotal *prometheus.CounterVec
	runsNotFound *prometheus.CounterVec

	notificationsTotal *prometheus.CounterVec

	log *logger.Logger
}

// NewPrometheusSink creates a sink registered against reg
func NewPrometheusSink(reg prometheus.Registerer, log *logger.Logger) *PrometheusSink {
	if log == nil {
		log = logger.Nop()
	}

	s := &PrometheusSink{log: log}
	s.initSchedulerMetrics(reg)
	s.initRunMetrics(reg)
	s.initNotificationMetrics(reg)
	return s
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.registeredJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "knbatch_registered_jobs",
		Help: "Number of enabled jobs loaded into the registry.",
	})
	s.firesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "knbatch_scheduler_fires_total",
		Help: "Total number of cron timer fires per job.",
	}, []string{"job_id"})
	s.fireErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "knbatch_scheduler_fire_errors_total",
		Help: "Total number of fires that ended in an error or panic at the timer boundary.",
	}, []string{"job_id"})
	s.poolInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "knbatch_scheduler_pool_in_flight",
		Help: "Runs currently holding a worker pool slot.",
	})
	s.poolWaiting = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "knbatch_scheduler_pool_waiting",
		Help: "Fires waiting for a worker pool slot.",
	})

	s.register(reg, s.registeredJobs, "knbatch_registered_jobs")
	s.register(reg, s.firesTotal, "knbatch_scheduler_fires_total")
	s.register(reg, s.fireErrorsTotal, "knbatch_scheduler_fire_errors_total")
	s.register(reg, s.poolInFlight, "knbatch_scheduler_pool_in_flight")
	s.register(reg, s.poolWaiting, "knbatch_scheduler_pool_waiting")
}

func (s *PrometheusSink) initRunMetrics(reg prometheus.Registerer) {
	s.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "knbatch_job_runs_total",
		Help: "Total number of job runs by final status.",
	}, []string{"job_id", "mode", "status"})
	s.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "knbatch_job_run_duration_seconds",
		Help:    "Duration of job runs in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
	}, []string{"job_id"})
	s.recordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "knbatch_job_records_total",
		Help: "Records read or written by job runs.",
	}, []string{"job_id", "kind"})
	s.runsNotFound = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "knbatch_job_lookup_misses_total",
		Help: "Manual runs that targeted an unknown job id.",
	}, []string{"job_id"})

	s.register(reg, s.runsTotal, "knbatch_job_runs_total")
	s.register(reg, s.runDuration, "knbatch_job_run_duration_seconds")
	s.register(reg, s.recordsTotal, "knbatch_job_records_total")
	s.register(reg, s.runsNotFound, "knbatch_job_lookup_misses_total")
}

func (s *PrometheusSink) initNotificationMetrics(reg prometheus.Registerer) {
	s.notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "knbatch_notifications_total",
		Help: "Notification attempts by channel and outcome.",
	}, []string{"channel", "outcome"})

	s.register(reg, s.notificationsTotal, "knbatch_notifications_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.log.Warn().Err(err).Str("metric", name).Msg("Failed to register metric")
	}
}

func (s *PrometheusSink) RegisteredJobs(count int) {
	s.registeredJobs.Set(float64(count))
}

func (s *PrometheusSink) SchedulerFired(jobID string) {
	s.firesTotal.WithLabelValues(jobID).Inc()
}

func (s *PrometheusSink) SchedulerFireFailed(jobID string) {
	s.fireErrorsTotal.WithLabelValues(jobID).Inc()
}

func (s *PrometheusSink) PoolUsage(inFlight, waiting int) {
	s.poolInFlight.Set(float64(inFlight))
	s.poolWaiting.Set(float64(waiting))
}

func (s *PrometheusSink) RunFinished(jobID, mode, status string, duration time.Duration, readCount, writeCount int64) {
	s.runsTotal.WithLabelValues(jobID, mode, status).Inc()
	s.runDuration.WithLabelValues(jobID).Observe(duration.Seconds())
	s.recordsTotal.WithLabelValues(jobID, "read").Add(float64(readCount))
	s.recordsTotal.WithLabelValues(jobID, "write").Add(float64(writeCount))
}

func (s *PrometheusSink) RunNotFound(jobID string) {
	s.runsNotFound.WithLabelValues(jobID).Inc()
}

func (s *PrometheusSink) Notification(channel, outcome string) {
	s.notificationsTotal.WithLabelValues(channel, outcome).Inc()
}
