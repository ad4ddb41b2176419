package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/knpiano/knbatch/pkg/logger"
	"github.com/knpiano/knbatch/pkg/models"
	"github.com/knpiano/knbatch/pkg/utils"
)

const (
	subjectPrefix = "knbatch.runs"
	subjectAll    = "knbatch.runs.all"

	EventStarted  = "started"
	EventFinished = "finished"
)

// Conn is the part of *nats.Conn the publisher uses
type Conn interface {
	Publish(subject string, data []byte) error
}

// RunEvent is the payload published for run transitions
type RunEvent struct {
	Type           string                 `json:"type"`
	JobID          string                 `json:"job_id"`
	BusinessModule string                 `json:"business_module"`
	Mode           models.RunMode         `json:"mode"`
	BaseDate       string                 `json:"base_date"`
	RunID          string                 `json:"run_id"`
	Status         models.ExecutionStatus `json:"status,omitempty"`
	ReadCount      int64                  `json:"read_count,omitempty"`
	WriteCount     int64                  `json:"write_count,omitempty"`
	DurationMs     int64                  `json:"duration_ms,omitempty"`
	FailureCauses  []string               `json:"failure_causes,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// Publisher emits run events on NATS. It is a run observer; publish errors
// are logged and dropped so a broker outage never affects a run.
type Publisher struct {
	conn   Conn
	logger *logger.Logger
	clock  func() time.Time
}

// NewPublisher creates a publisher over conn
func NewPublisher(conn Conn, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{conn: conn, logger: log.WithComponent("events"), clock: time.Now}
}

// Connect dials NATS with reconnects enabled
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return nc, nil
}

// Subject returns the subject a job's events of the given type go to
func Subject(jobID, eventType string) string {
	return utils.JoinSubject(subjectPrefix, utils.SubjectToken(jobID), eventType)
}

func (p *Publisher) BeforeRun(_ context.Context, rc models.RunContext) {
	p.publish(RunEvent{
		Type:           EventStarted,
		JobID:          rc.JobID,
		BusinessModule: rc.BusinessModule,
		Mode:           rc.Mode,
		BaseDate:       rc.BaseDate,
		RunID:          rc.RunID,
		Timestamp:      p.clock(),
	})
}

func (p *Publisher) AfterRun(_ context.Context, rc models.RunContext, result models.ExecutionResult) {
	p.publish(RunEvent{
		Type:           EventFinished,
		JobID:          rc.JobID,
		BusinessModule: rc.BusinessModule,
		Mode:           rc.Mode,
		BaseDate:       rc.BaseDate,
		RunID:          rc.RunID,
		Status:         result.Status,
		ReadCount:      result.ReadCount,
		WriteCount:     result.WriteCount,
		DurationMs:     result.Duration().Milliseconds(),
		FailureCauses:  result.FailureCauses,
		Timestamp:      p.clock(),
	})
}

func (p *Publisher) publish(event RunEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("run_id", event.RunID).Msg("Failed to marshal run event")
		return
	}

	subject := Subject(event.JobID, event.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn().
			Err(err).
			Str("subject", subject).
			Str("run_id", event.RunID).
			Msg("Failed to publish run event")
		return
	}

	if err := p.conn.Publish(subjectAll, data); err != nil {
		p.logger.Warn().Err(err).Str("subject", subjectAll).Msg("Failed to publish run event")
	}
}
