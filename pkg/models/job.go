package models

import (
	"strings"
	"time"
)

// BaseDateLayout is the yyyyMMdd layout used for run base dates
const BaseDateLayout = "20060102"

// JobDefinition is one catalogued batch job as stored by the admin tooling
type JobDefinition struct {
	ID                string `json:"id" yaml:"id"`
	HandlerRef        string `json:"handler_ref" yaml:"handler"`
	Description       string `json:"description" yaml:"description"`
	CronExpression    string `json:"cron_expression,omitempty" yaml:"cron"`
	CronDescription   string `json:"cron_description,omitempty" yaml:"cron_description"`
	TargetDescription string `json:"target_description,omitempty" yaml:"target_description"`
	Enabled           bool   `json:"enabled" yaml:"enabled"`
}

// IsScheduled reports whether the definition carries a cron expression.
// Definitions without one can only be run manually.
func (d JobDefinition) IsScheduled() bool {
	return strings.TrimSpace(d.CronExpression) != ""
}

// RunMode identifies how a run was triggered
type RunMode string

const (
	// ModeManual runs with an operator supplied base date
	ModeManual RunMode = "MANUAL"
	// ModeAuto runs from the CLI with today's date
	ModeAuto RunMode = "AUTO"
	// ModeScheduled runs from a cron timer with today's date
	ModeScheduled RunMode = "SCHEDULED"
)

// RunContext carries the parameters and identity of a single invocation
type RunContext struct {
	JobID          string    `json:"job_id"`
	BusinessModule string    `json:"business_module"`
	Mode           RunMode   `json:"mode"`
	BaseDate       string    `json:"base_date"`
	TriggeredAt    time.Time `json:"triggered_at"`
	RunID          string    `json:"run_id"`
}

// BaseTime parses BaseDate in the given location
func (rc RunContext) BaseTime(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(BaseDateLayout, rc.BaseDate, loc)
}

// ExecutionStatus is the final state of a run
type ExecutionStatus string

const (
	StatusCompleted ExecutionStatus = "COMPLETED"
	StatusWarning   ExecutionStatus = "WARNING"
	StatusFailed    ExecutionStatus = "FAILED"
)

// ExecutionResult is the outcome of exactly one RunContext
type ExecutionResult struct {
	JobID         string          `json:"job_id"`
	RunID         string          `json:"run_id"`
	Status        ExecutionStatus `json:"status"`
	ReadCount     int64           `json:"read_count"`
	WriteCount    int64           `json:"write_count"`
	StartedAt     time.Time       `json:"started_at"`
	EndedAt       time.Time       `json:"ended_at"`
	FailureCauses []string        `json:"failure_causes,omitempty"`
}

// Succeeded reports whether the run ended without a failure. Warnings count as success.
func (r ExecutionResult) Succeeded() bool {
	return r.Status != StatusFailed
}

// Duration returns the wall-clock time spent in the run
func (r ExecutionResult) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
