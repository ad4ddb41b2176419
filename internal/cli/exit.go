package cli

import (
	"github.com/cockroachdb/errors"

	"github.com/knpiano/knbatch/pkg/jobs"
)

// Process exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitCode maps the outcome of a command to the process exit status. An
// unknown job id is reported but is not a failure.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case jobs.IsUsage(err):
		return ExitUsage
	case errors.Is(err, jobs.ErrJobNotFound):
		return ExitOK
	default:
		return ExitFailure
	}
}

func configurationError(err error) error {
	if jobs.IsConfiguration(err) {
		return err
	}
	return errors.Mark(err, jobs.ErrConfiguration)
}

func usageError(err error) error {
	return errors.Mark(err, jobs.ErrUsage)
}
