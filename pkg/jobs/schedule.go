package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the six-field format used by the job catalogue:
// seconds, minutes, hours, day of month, month, day of week. '?' is accepted in
// the day fields and descriptors such as @daily still work.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// maxLastDayProbes bounds the search for the next last-day-of-month fire
const maxLastDayProbes = 64

// ParseSchedule parses a catalogue cron expression. Besides what robfig/cron
// understands it supports 'L' in the day-of-month field (last day of month).
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty cron expression")
	}

	fields := strings.Fields(expr)
	if len(fields) == 6 && strings.EqualFold(fields[3], "L") {
		fields[3] = "*"
		inner, err := cronParser.Parse(strings.Join(fields, " "))
		if err != nil {
			return nil, fmt.Errorf("failed to parse cron expression %q: %w", expr, err)
		}
		return &lastDayOfMonthSchedule{inner: inner}, nil
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// lastDayOfMonthSchedule restricts an every-day schedule to the last day of each month
type lastDayOfMonthSchedule struct {
	inner cron.Schedule
}

func (s *lastDayOfMonthSchedule) Next(t time.Time) time.Time {
	next := s.inner.Next(t)
	for i := 0; i < maxLastDayProbes && !next.IsZero(); i++ {
		if isLastDayOfMonth(next) {
			return next
		}

		// jump to the start of this month's last day
		lastDay := time.Date(next.Year(), next.Month()+1, 0, 0, 0, 0, 0, next.Location())
		next = s.inner.Next(lastDay.Add(-time.Second))
	}
	return time.Time{}
}

func isLastDayOfMonth(t time.Time) bool {
	return t.AddDate(0, 0, 1).Day() == 1
}

// CronDescriber renders cron expressions as human text using a static table.
// Unknown expressions are echoed verbatim; it is deliberately not a cron grammar.
type CronDescriber struct {
	table map[string]string
}

// DefaultCronDescriptions covers the expressions used by the shipped catalogue
var DefaultCronDescriptions = map[string]string{
	"0 0 1 1 * ?":   "1st of every month at 01:00",
	"0 0 2 ? * SUN": "every Sunday at 02:00",
	"0 0 3 ? * MON": "every Monday at 03:00",
	"0 0 4 L * ?":   "last day of every month at 04:00",
	"0 0 5 1 * ?":   "1st of every month at 05:00",
	"0 */5 * * * ?": "every 5 minutes",
}

// NewCronDescriber creates a describer from the defaults plus extra entries.
// Extra entries override defaults with the same expression.
func NewCronDescriber(extra map[string]string) *CronDescriber {
	table := make(map[string]string, len(DefaultCronDescriptions)+len(extra))
	for expr, desc := range DefaultCronDescriptions {
		table[expr] = desc
	}
	for expr, desc := range extra {
		table[strings.TrimSpace(expr)] = desc
	}
	return &CronDescriber{table: table}
}

// Describe returns the human text for expr
func (d *CronDescriber) Describe(expr string) string {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "not scheduled"
	}
	if desc, ok := d.table[expr]; ok {
		return desc
	}
	return expr
}
