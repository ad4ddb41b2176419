package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Notification is one outgoing message about a finished run
type Notification struct {
	JobID       string
	Description string
	Success     bool
	Channel     string
	From        string
	To          []string
	Subject     string
	Body        string
}

// Sender delivers notifications. Errors are reported to the caller, which
// decides what to do with them; the Reporter always swallows them.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

const (
	subjectTag      = "[KNBatch]"
	bodyTimeLayout  = "2006-01-02 15:04:05"
	bodyRule        = "----------------------------------------"
	emptyLogMessage = "(no log output)"
)

func statusWord(success bool) string {
	if success {
		return "succeeded"
	}
	return "failed"
}

// subject renders "[KNBatch] JOB succeeded", tagged with the environment
// outside production
func subject(jobID string, success bool, envTag string) string {
	s := fmt.Sprintf("%s %s %s", subjectTag, jobID, statusWord(success))
	if envTag != "" {
		s = "[" + strings.ToUpper(envTag) + "] " + s
	}
	return s
}

// body frames the run log with the job header and a footer
func body(jobID, description string, success bool, environment, logText string, now time.Time) string {
	var b strings.Builder

	b.WriteString("KNBatch execution report\n")
	b.WriteString("========================================\n\n")
	fmt.Fprintf(&b, "Job:         %s %s\n", jobID, description)
	fmt.Fprintf(&b, "Status:      %s\n", statusWord(success))
	fmt.Fprintf(&b, "Reported at: %s\n", now.Format(bodyTimeLayout+" Monday"))
	fmt.Fprintf(&b, "Environment: %s\n\n", environment)

	b.WriteString("Run log:\n")
	b.WriteString(bodyRule + "\n")
	if strings.TrimSpace(logText) != "" {
		b.WriteString(logText)
	} else {
		b.WriteString(emptyLogMessage)
	}
	b.WriteString("\n" + bodyRule + "\n")
	fmt.Fprintf(&b, "Sent automatically by KNBatch at %s\n", now.Format(bodyTimeLayout))

	return b.String()
}
