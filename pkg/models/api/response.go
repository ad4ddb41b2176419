package api

import (
	"time"

	"github.com/knpiano/knbatch/pkg/database/pool"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                `json:"status"`
	Timestamp time.Time             `json:"timestamp"`
	Checks    map[string]string     `json:"checks,omitempty"`
	Pools     map[string]pool.Stats `json:"pools,omitempty"`
}

// JobResponse is one catalogued job with its timer state, if any
type JobResponse struct {
	ID                string     `json:"id"`
	Handler           string     `json:"handler"`
	Description       string     `json:"description"`
	TargetDescription string     `json:"target_description,omitempty"`
	CronExpression    string     `json:"cron_expression,omitempty"`
	CronDescription   string     `json:"cron_description,omitempty"`
	Scheduled         bool       `json:"scheduled"`
	NextRun           *time.Time `json:"next_run,omitempty"`
	PreviousRun       *time.Time `json:"previous_run,omitempty"`
}

// PoolResponse reports worker pool usage
type PoolResponse struct {
	Size     int `json:"size"`
	InFlight int `json:"in_flight"`
	Waiting  int `json:"waiting"`
}

// JobsResponse represents the /jobs listing
type JobsResponse struct {
	Jobs      []JobResponse `json:"jobs"`
	Total     int           `json:"total"`
	Scheduled int           `json:"scheduled"`
	Pool      *PoolResponse `json:"pool,omitempty"`
	TimeZone  string        `json:"time_zone,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ErrorResponse is returned with any non-2xx status
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
