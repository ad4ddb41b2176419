package jobs

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/knpiano/knbatch/pkg/models"
)

const usageHint = "use --job.name=<ID>_MANUAL --base.date=yyyyMMdd or --job.name=<ID>_AUTO"

// ParseJobName splits a logical job name of the form <ID>_<MODE> into the
// business module and the mode. Only MANUAL and AUTO can be requested from
// outside; SCHEDULED runs are produced by the scheduler itself.
func ParseJobName(name string) (string, models.RunMode, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", usageErrorf(usageHint, "missing --job.name")
	}

	idx := strings.LastIndex(name, "_")
	if idx <= 0 || idx == len(name)-1 {
		return "", "", usageErrorf(usageHint, "job name %q must look like <ID>_<MODE>", name)
	}

	module, suffix := name[:idx], name[idx+1:]
	switch models.RunMode(suffix) {
	case models.ModeManual, models.ModeAuto:
		return module, models.RunMode(suffix), nil
	default:
		return "", "", usageErrorf(usageHint, "unsupported mode %q in job name %q (expected MANUAL or AUTO)", suffix, name)
	}
}

// NewManualContext builds the RunContext of a CLI invocation. MANUAL requires
// an explicit yyyyMMdd base date; AUTO always uses the calendar date of now.
func NewManualContext(jobName, baseDate string, now time.Time) (models.RunContext, error) {
	module, mode, err := ParseJobName(jobName)
	if err != nil {
		return models.RunContext{}, err
	}

	switch mode {
	case models.ModeManual:
		baseDate = strings.TrimSpace(baseDate)
		if baseDate == "" {
			return models.RunContext{}, usageErrorf(
				"MANUAL runs need --base.date=yyyyMMdd",
				"missing --base.date for %s", jobName)
		}
		if _, err := time.Parse(models.BaseDateLayout, baseDate); err != nil {
			return models.RunContext{}, usageErrorf(
				"MANUAL runs need --base.date=yyyyMMdd",
				"invalid --base.date %q", baseDate)
		}
	default:
		baseDate = FormatBaseDate(now)
	}

	return newRunContext(module, mode, baseDate, now), nil
}

// NewScheduledContext builds the RunContext of a timer fire
func NewScheduledContext(jobID string, now time.Time) models.RunContext {
	return newRunContext(jobID, models.ModeScheduled, FormatBaseDate(now), now)
}

// FormatBaseDate renders the calendar date of t as yyyyMMdd
func FormatBaseDate(t time.Time) string {
	return t.Format(models.BaseDateLayout)
}

func newRunContext(module string, mode models.RunMode, baseDate string, now time.Time) models.RunContext {
	return models.RunContext{
		JobID:          module,
		BusinessModule: module,
		Mode:           mode,
		BaseDate:       baseDate,
		TriggeredAt:    now,
		RunID:          NewRunID(),
	}
}

// NewRunID returns a fresh, time-ordered run identity. Nothing deduplicates on it;
// two runs of the same job and date always get two identities.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
