package logger

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// CronLogger adapts Logger to robfig/cron's logging interface so scheduler
// internals (entry scheduling, recovered panics) land in the same JSON stream.
type CronLogger struct {
	log *Logger
}

var _ cron.Logger = (*CronLogger)(nil)

// NewCronLogger wraps l for use with cron.WithLogger and cron.Recover
func NewCronLogger(l *Logger) *CronLogger {
	return &CronLogger{log: l}
}

// Info logs routine cron messages at debug level; cron logs on every wake-up
func (c *CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().
		Str("component", "cron").
		Fields(toFields(keysAndValues)).
		Msg(msg)
}

// Error logs cron errors, including panics recovered by cron.Recover
func (c *CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().
		Err(err).
		Str("component", "cron").
		Fields(toFields(keysAndValues)).
		Msg(msg)
}

func toFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
