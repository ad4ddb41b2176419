package jobs

import (
	"github.com/cockroachdb/errors"
)

// Error classes. Use errors.Is against these to classify anything returned by
// this package; concrete errors carry them as marks.
var (
	// ErrConfiguration means the job catalogue or handler table cannot be trusted
	ErrConfiguration = errors.New("configuration error")
	// ErrUsage means the operator supplied malformed arguments
	ErrUsage = errors.New("usage error")
	// ErrJobNotFound means a manual run targeted an id unknown to registry and store
	ErrJobNotFound = errors.New("job not found")
	// ErrHandlerFailure means the business handler failed while running
	ErrHandlerFailure = errors.New("handler failure")
)

func configurationErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

func wrapConfiguration(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrConfiguration)
}

func usageErrorf(hint string, format string, args ...interface{}) error {
	err := errors.Mark(errors.Newf(format, args...), ErrUsage)
	if hint != "" {
		err = errors.WithHint(err, hint)
	}
	return err
}

func handlerFailure(err error, jobID string) error {
	return errors.Mark(errors.Wrapf(err, "job %s failed", jobID), ErrHandlerFailure)
}

// IsUsage reports whether err was caused by bad operator input
func IsUsage(err error) bool { return errors.Is(err, ErrUsage) }

// IsConfiguration reports whether err was caused by an unusable catalogue
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }

// IsHandlerFailure reports whether err came out of a failing handler
func IsHandlerFailure(err error) bool { return errors.Is(err, ErrHandlerFailure) }

// Hints returns the operator hints attached to err, one per line
func Hints(err error) string {
	return errors.FlattenHints(err)
}

// failureCauses flattens the error chain into human readable causes,
// outermost first, skipping wrappers that add no text of their own.
func failureCauses(err error) []string {
	if err == nil {
		return nil
	}

	causes := []string{err.Error()}
	if root := errors.UnwrapAll(err); root != nil && root.Error() != err.Error() {
		causes = append(causes, root.Error())
	}
	return causes
}
