package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knpiano/knbatch/pkg/jobs"
	"github.com/knpiano/knbatch/pkg/logger"
	"github.com/knpiano/knbatch/pkg/models"
)

// MockDB implements database.DBTX for testing
type MockDB struct {
	counts   []int64
	countErr error
	execTag  string
	execErr  error

	queries []string
	args    [][]interface{}
}

func (m *MockDB) QueryRow(ctx context.Context, query string, args ...interface{}) pgx.Row {
	m.queries = append(m.queries, query)
	m.args = append(m.args, args)

	if m.countErr != nil {
		return &MockRow{err: m.countErr}
	}
	if query == pingQuery {
		return &MockRow{value: time.Date(2025, 6, 15, 4, 0, 0, 0, time.UTC)}
	}

	var n int64
	if len(m.counts) > 0 {
		n, m.counts = m.counts[0], m.counts[1:]
	}
	return &MockRow{value: n}
}

func (m *MockDB) Query(ctx context.Context, query string, args ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (m *MockDB) Exec(ctx context.Context, query string, args ...interface{}) (pgconn.CommandTag, error) {
	m.queries = append(m.queries, query)
	m.args = append(m.args, args)
	if m.execErr != nil {
		return pgconn.CommandTag{}, m.execErr
	}
	return pgconn.NewCommandTag(m.execTag), nil
}

// MockRow implements pgx.Row for testing
type MockRow struct {
	value interface{}
	err   error
}

func (m *MockRow) Scan(dest ...interface{}) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		switch v := dest[0].(type) {
		case *int64:
			*v = m.value.(int64)
		case *time.Time:
			*v = m.value.(time.Time)
		}
	}
	return nil
}

func lessonSpec() CorrectionSpec {
	return CorrectionSpec{
		Handler: "kndb1010Job",
		Find:    "SELECT count(*) FROM t_info_lesson WHERE to_char(schedual_date, 'YYYY-MM') = $1 AND level_ok = false",
		Fix:     "UPDATE t_info_lesson SET level_ok = true WHERE to_char(schedual_date, 'YYYY-MM') = $1 AND level_ok = false",
		Param:   ParamMonth,
	}
}

func runContext() models.RunContext {
	return models.RunContext{
		JobID:          "KNDB1010",
		BusinessModule: "KNDB1010",
		Mode:           models.ModeManual,
		BaseDate:       "20250615",
		RunID:          "run-1",
	}
}

func TestCorrection_NothingToFix(t *testing.T) {
	db := &MockDB{counts: []int64{0}}
	c, err := NewCorrection(lessonSpec(), db, time.UTC)
	require.NoError(t, err)

	out := jobs.NewRunLog(logger.Nop(), nil)
	outcome, err := c.Execute(context.Background(), runContext(), out)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, outcome.Status)
	assert.Zero(t, outcome.ReadCount)
	assert.Len(t, db.queries, 1, "fix must not run")
	assert.Equal(t, []interface{}{"2025-06"}, db.args[0])
	assert.Contains(t, out.String(), "Nothing to correct")
}

func TestCorrection_FixedEverything(t *testing.T) {
	db := &MockDB{counts: []int64{4, 0}, execTag: "UPDATE 4"}
	c, err := NewCorrection(lessonSpec(), db, time.UTC)
	require.NoError(t, err)

	out := jobs.NewRunLog(logger.Nop(), nil)
	outcome, err := c.Execute(context.Background(), runContext(), out)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, outcome.Status)
	assert.Equal(t, int64(4), outcome.ReadCount)
	assert.Equal(t, int64(4), outcome.WriteCount)
	require.Len(t, db.queries, 3)
	assert.Equal(t, lessonSpec().Find, db.queries[2], "verify defaults to find")
	assert.Contains(t, out.String(), "4 rows corrected")
}

func TestCorrection_RemainingRowsAreAWarning(t *testing.T) {
	db := &MockDB{counts: []int64{5, 2}, execTag: "UPDATE 3"}
	spec := lessonSpec()
	spec.Verify = "SELECT count(*) FROM t_info_lesson WHERE level_ok = false"
	c, err := NewCorrection(spec, db, time.UTC)
	require.NoError(t, err)

	out := jobs.NewRunLog(logger.Nop(), nil)
	outcome, err := c.Execute(context.Background(), runContext(), out)
	require.NoError(t, err)

	assert.Equal(t, models.StatusWarning, outcome.Status)
	assert.Equal(t, int64(3), outcome.WriteCount)
	assert.Equal(t, spec.Verify, db.queries[2])
	assert.Contains(t, out.String(), "2 rows are still wrong")
}

func TestCorrection_FixFailure(t *testing.T) {
	db := &MockDB{counts: []int64{5}, execErr: errors.New("deadlock detected")}
	c, err := NewCorrection(lessonSpec(), db, time.UTC)
	require.NoError(t, err)

	outcome, err := c.Execute(context.Background(), runContext(), jobs.NewRunLog(nil, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.Equal(t, int64(5), outcome.ReadCount)
}

func TestCorrection_FindFailure(t *testing.T) {
	db := &MockDB{countErr: errors.New("relation does not exist")}
	c, err := NewCorrection(lessonSpec(), db, time.UTC)
	require.NoError(t, err)

	_, err = c.Execute(context.Background(), runContext(), jobs.NewRunLog(nil, nil))
	assert.Error(t, err)
}

func TestCorrection_ParamModes(t *testing.T) {
	rc := runContext()

	spec := lessonSpec()
	spec.Param = ParamDate
	db := &MockDB{counts: []int64{0}}
	c, err := NewCorrection(spec, db, time.UTC)
	require.NoError(t, err)
	_, err = c.Execute(context.Background(), rc, jobs.NewRunLog(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)}, db.args[0])

	spec.Param = ""
	db = &MockDB{counts: []int64{0}}
	c, err = NewCorrection(spec, db, time.UTC)
	require.NoError(t, err)
	_, err = c.Execute(context.Background(), rc, jobs.NewRunLog(nil, nil))
	require.NoError(t, err)
	assert.Empty(t, db.args[0])
}

func TestCorrection_InvalidBaseDate(t *testing.T) {
	c, err := NewCorrection(lessonSpec(), &MockDB{}, time.UTC)
	require.NoError(t, err)

	rc := runContext()
	rc.BaseDate = "2025-06-15"
	_, err = c.Execute(context.Background(), rc, jobs.NewRunLog(nil, nil))
	assert.Error(t, err)
}

func TestCorrectionSpec_Validate(t *testing.T) {
	valid := lessonSpec()
	assert.NoError(t, valid.Validate())

	tests := map[string]func(*CorrectionSpec){
		"missing handler": func(s *CorrectionSpec) { s.Handler = "" },
		"missing find":    func(s *CorrectionSpec) { s.Find = "" },
		"missing fix":     func(s *CorrectionSpec) { s.Fix = " " },
		"bad param":       func(s *CorrectionSpec) { s.Param = "week" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			spec := lessonSpec()
			mutate(&spec)
			assert.Error(t, spec.Validate())
		})
	}

	_, err := NewCorrection(valid, nil, nil)
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	db := &MockDB{}
	out := jobs.NewRunLog(logger.Nop(), nil)

	outcome, err := NewPing(db).Execute(context.Background(), runContext(), out)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, outcome.Status)
	assert.Equal(t, int64(1), outcome.ReadCount)
	assert.Contains(t, out.String(), "2025-06-15T04:00:00Z")
}

func TestPing_Failure(t *testing.T) {
	db := &MockDB{countErr: errors.New("connection refused")}

	_, err := NewPing(db).Execute(context.Background(), runContext(), jobs.NewRunLog(nil, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRegister(t *testing.T) {
	handlers := jobs.NewHandlerRegistry()
	second := lessonSpec()
	second.Handler = "kndb2020Job"

	require.NoError(t, Register(handlers, &MockDB{}, []CorrectionSpec{lessonSpec(), second}, time.UTC))
	assert.Equal(t, []string{"kndb1010Job", "kndb2020Job", PingHandlerRef}, handlers.Refs())

	err := Register(jobs.NewHandlerRegistry(), &MockDB{}, []CorrectionSpec{lessonSpec(), lessonSpec()}, time.UTC)
	assert.Error(t, err, "duplicate handler")

	err = Register(jobs.NewHandlerRegistry(), nil, nil, time.UTC)
	assert.Error(t, err)
}
