package metrics

import "time"

// Sink records batch runtime metrics.
// All methods are fire-and-forget: implementations must not block or propagate errors.
type Sink interface {
	// Registry
	RegisteredJobs(count int)

	// Scheduler
	SchedulerFired(jobID string)
	SchedulerFireFailed(jobID string)
	PoolUsage(inFlight, waiting int)

	// Executor
	RunFinished(jobID, mode, status string, duration time.Duration, readCount, writeCount int64)
	RunNotFound(jobID string)

	// Reporter
	Notification(channel, outcome string)
}

// Notification channels
const (
	ChannelMaintainer = "maintainer"
	ChannelUser       = "user"
)

// Notification outcomes
const (
	NotificationSent    = "sent"
	NotificationSkipped = "skipped"
	NotificationFailed  = "failed"
)
