package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) RegisteredJobs(count int)                                          {}
func (n *NoopSink) SchedulerFired(jobID string)                                       {}
func (n *NoopSink) SchedulerFireFailed(jobID string)                                  {}
func (n *NoopSink) PoolUsage(inFlight, waiting int)                                   {}
func (n *NoopSink) RunFinished(jobID, mode, status string, d time.Duration, r, w int64) {}
func (n *NoopSink) RunNotFound(jobID string)                                          {}
func (n *NoopSink) Notification(channel, outcome string)                              {}
