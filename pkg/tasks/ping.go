package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/knpiano/knbatch/pkg/database"
	"github.com/knpiano/knbatch/pkg/jobs"
	"github.com/knpiano/knbatch/pkg/models"
)

// PingHandlerRef is the handler reference of the database heartbeat
const PingHandlerRef = "pingJob"

const pingQuery = "SELECT now()"

// slowPing turns a healthy but sluggish database into a warning
const slowPing = 2 * time.Second

// Ping checks that the handler database answers
type Ping struct {
	db database.DBTX
}

// NewPing creates the heartbeat handler
func NewPing(db database.DBTX) *Ping {
	return &Ping{db: db}
}

func (p *Ping) Execute(ctx context.Context, rc models.RunContext, out *jobs.RunLog) (jobs.Outcome, error) {
	start := time.Now()

	var serverTime time.Time
	if err := p.db.QueryRow(ctx, pingQuery).Scan(&serverTime); err != nil {
		return jobs.Outcome{}, fmt.Errorf("database ping failed: %w", err)
	}
	elapsed := time.Since(start)

	out.Printf("Database answered in %s (server time %s)", elapsed.Round(time.Millisecond), serverTime.Format(time.RFC3339))
	if elapsed > slowPing {
		out.Warnf("Database round trip exceeded %s", slowPing)
		return jobs.Outcome{Status: models.StatusWarning, ReadCount: 1}, nil
	}
	return jobs.Outcome{Status: models.StatusCompleted, ReadCount: 1}, nil
}
