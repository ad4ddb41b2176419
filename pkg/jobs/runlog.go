package jobs

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/knpiano/knbatch/pkg/logger"
)

const runLogTimeLayout = "2006-01-02 15:04:05"

// RunLog collects the timestamped, human readable transcript of one run.
// Every line is mirrored to the structured logger as well.
type RunLog struct {
	mu    sync.Mutex
	buf   strings.Builder
	log   *logger.Logger
	clock func() time.Time
}

// NewRunLog creates an empty transcript mirrored to log
func NewRunLog(log *logger.Logger, clock func() time.Time) *RunLog {
	if log == nil {
		log = logger.Nop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &RunLog{log: log, clock: clock}
}

// Printf appends one line
func (l *RunLog) Printf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	fmt.Fprintf(&l.buf, "[%s] %s\n", l.clock().Format(runLogTimeLayout), msg)
	l.mu.Unlock()

	l.log.Info().Msg(msg)
}

// Warnf appends one line and logs it at warning level
func (l *RunLog) Warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	fmt.Fprintf(&l.buf, "[%s] WARN %s\n", l.clock().Format(runLogTimeLayout), msg)
	l.mu.Unlock()

	l.log.Warn().Msg(msg)
}

// Logger returns the structured logger the transcript mirrors to
func (l *RunLog) Logger() *logger.Logger {
	return l.log
}

// String returns the transcript collected so far
func (l *RunLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

// Block appends an untimestamped block framed by a title line
func (l *RunLog) Block(title string, lines ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(&l.buf, "========== %s ==========\n", title)
	for _, line := range lines {
		l.buf.WriteString(line)
		l.buf.WriteByte('\n')
	}
}
