package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/knpiano/knbatch/pkg/database"
	"github.com/knpiano/knbatch/pkg/jobs"
	"github.com/knpiano/knbatch/pkg/models"
)

// Parameter modes for correction queries
const (
	ParamNone  = "none"
	ParamMonth = "month" // $1 is the base date's month as yyyy-MM
	ParamDate  = "date"  // $1 is the base date itself
)

// CorrectionSpec describes a find/fix/verify data correction
type CorrectionSpec struct {
	// Handler is the reference job definitions use to select this correction
	Handler string `mapstructure:"handler" yaml:"handler"`
	// Find counts the rows that need correcting
	Find string `mapstructure:"find" yaml:"find"`
	// Fix corrects them; its affected row count is the run's write count
	Fix string `mapstructure:"fix" yaml:"fix"`
	// Verify counts what is still wrong after the fix. Defaults to Find.
	Verify string `mapstructure:"verify" yaml:"verify"`
	Param  string `mapstructure:"param" yaml:"param"`
}

// Validate checks that the spec can run
func (s CorrectionSpec) Validate() error {
	if strings.TrimSpace(s.Handler) == "" {
		return fmt.Errorf("correction is missing handler")
	}
	if strings.TrimSpace(s.Find) == "" || strings.TrimSpace(s.Fix) == "" {
		return fmt.Errorf("correction %s needs both find and fix queries", s.Handler)
	}
	switch s.Param {
	case "", ParamNone, ParamMonth, ParamDate:
		return nil
	default:
		return fmt.Errorf("correction %s: unknown param mode %q", s.Handler, s.Param)
	}
}

// Correction finds broken rows, fixes them and verifies the fix. Rows still
// broken after the fix turn the run into a WARNING rather than a failure.
type Correction struct {
	spec     CorrectionSpec
	db       database.DBTX
	location *time.Location
}

// NewCorrection creates a correction handler over db
func NewCorrection(spec CorrectionSpec, db database.DBTX, loc *time.Location) (*Correction, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if db == nil {
		return nil, fmt.Errorf("correction %s: database is required", spec.Handler)
	}
	if spec.Verify == "" {
		spec.Verify = spec.Find
	}
	if loc == nil {
		loc = time.Local
	}
	return &Correction{spec: spec, db: db, location: loc}, nil
}

// Execute runs the correction for rc's base date
func (c *Correction) Execute(ctx context.Context, rc models.RunContext, out *jobs.RunLog) (jobs.Outcome, error) {
	args, err := c.args(rc)
	if err != nil {
		return jobs.Outcome{}, err
	}
	if len(args) > 0 {
		out.Printf("Target: %v", args[0])
	}

	out.Printf("Step 1: looking for rows to correct...")
	found, err := c.count(ctx, c.spec.Find, args)
	if err != nil {
		return jobs.Outcome{}, fmt.Errorf("failed to count rows to correct: %w", err)
	}
	out.Printf("Step 1: done, %d rows need correcting", found)

	if found == 0 {
		out.Printf("Nothing to correct")
		return jobs.Outcome{Status: models.StatusCompleted}, nil
	}

	out.Printf("Step 2: correcting rows...")
	tag, err := c.db.Exec(ctx, c.spec.Fix, args...)
	if err != nil {
		return jobs.Outcome{ReadCount: found}, fmt.Errorf("failed to correct rows: %w", err)
	}
	fixed := tag.RowsAffected()
	out.Printf("Step 2: done, %d rows corrected", fixed)

	out.Printf("Verify: checking the result...")
	remaining, err := c.count(ctx, c.spec.Verify, args)
	if err != nil {
		return jobs.Outcome{ReadCount: found, WriteCount: fixed}, fmt.Errorf("failed to verify correction: %w", err)
	}

	outcome := jobs.Outcome{Status: models.StatusCompleted, ReadCount: found, WriteCount: fixed}
	if remaining > 0 {
		out.Warnf("Verify: %d rows are still wrong after the correction", remaining)
		outcome.Status = models.StatusWarning
		return outcome, nil
	}

	out.Printf("Verify: all rows corrected")
	return outcome, nil
}

func (c *Correction) args(rc models.RunContext) ([]interface{}, error) {
	switch c.spec.Param {
	case ParamMonth, ParamDate:
		base, err := rc.BaseTime(c.location)
		if err != nil {
			return nil, fmt.Errorf("invalid base date %q: %w", rc.BaseDate, err)
		}
		if c.spec.Param == ParamMonth {
			return []interface{}{base.Format("2006-01")}, nil
		}
		return []interface{}{base}, nil
	default:
		return nil, nil
	}
}

func (c *Correction) count(ctx context.Context, query string, args []interface{}) (int64, error) {
	var n int64
	if err := c.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
