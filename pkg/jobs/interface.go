package jobs

import (
	"context"

	"github.com/knpiano/knbatch/pkg/models"
)

// Outcome is what a handler reports back about the work it did
type Outcome struct {
	// Status is COMPLETED or WARNING; FAILED is derived from a returned error
	Status     models.ExecutionStatus
	ReadCount  int64
	WriteCount int64
}

// Handler is the unit of business logic a job definition resolves to
type Handler interface {
	// Execute runs the job for the given context. Human readable progress goes
	// to out; it becomes the body of the notification mail.
	Execute(ctx context.Context, rc models.RunContext, out *RunLog) (Outcome, error)
}

// HandlerFunc adapts a plain function to Handler
type HandlerFunc func(ctx context.Context, rc models.RunContext, out *RunLog) (Outcome, error)

// Execute calls f
func (f HandlerFunc) Execute(ctx context.Context, rc models.RunContext, out *RunLog) (Outcome, error) {
	return f(ctx, rc, out)
}

// DefinitionStore is the external source of job definitions
type DefinitionStore interface {
	// LoadJobDefinitions returns every definition, enabled or not
	LoadJobDefinitions(ctx context.Context) ([]models.JobDefinition, error)

	// FindJobDefinition returns the definition with the given id regardless of
	// its enabled flag, or nil when there is none
	FindJobDefinition(ctx context.Context, id string) (*models.JobDefinition, error)
}

// Reporter turns a finished run into notifications. Implementations must not
// propagate delivery errors.
type Reporter interface {
	Report(ctx context.Context, jobID, description string, success bool, logText string)
}

// Observer receives before/after hooks for every run the executor performs
type Observer interface {
	BeforeRun(ctx context.Context, rc models.RunContext)
	AfterRun(ctx context.Context, rc models.RunContext, result models.ExecutionResult)
}
