package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knpiano/knbatch/pkg/models"
)

var jobColumns = []string{
	"job_id", "bean_name", "description",
	"cron_expression", "cron_description", "target_description",
	"enabled",
}

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db, nil), mock
}

func TestPostgres_LoadJobDefinitions(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows(jobColumns).
		AddRow("KNDB1010", "kndb1010Job", "lesson fee correction", "0 0 1 1 * ?", "monthly", "t_info_lesson", true).
		AddRow("KNDB2020", "kndb2020Job", "fee validation", nil, nil, nil, true).
		AddRow("KNDB9000", "kndb9000Job", "retired", "0 */5 * * * ?", nil, nil, false)
	mock.ExpectQuery(queryLoadJobDefinitions).WillReturnRows(rows)

	defs, err := s.LoadJobDefinitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 3)

	assert.Equal(t, models.JobDefinition{
		ID:                "KNDB1010",
		HandlerRef:        "kndb1010Job",
		Description:       "lesson fee correction",
		CronExpression:    "0 0 1 1 * ?",
		CronDescription:   "monthly",
		TargetDescription: "t_info_lesson",
		Enabled:           true,
	}, defs[0])
	assert.Empty(t, defs[1].CronExpression)
	assert.False(t, defs[1].IsScheduled())
	assert.False(t, defs[2].Enabled)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadJobDefinitions_QueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(queryLoadJobDefinitions).WillReturnError(errors.New("relation does not exist"))

	_, err := s.LoadJobDefinitions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relation does not exist")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadJobDefinitions_RowError(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows(jobColumns).
		AddRow("KNDB1010", "kndb1010Job", "x", nil, nil, nil, true).
		RowError(0, errors.New("connection reset"))
	mock.ExpectQuery(queryLoadJobDefinitions).WillReturnRows(rows)

	_, err := s.LoadJobDefinitions(context.Background())
	assert.Error(t, err)
}

func TestPostgres_FindJobDefinition(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(queryFindJobDefinition).
		WithArgs("KNDB9000").
		WillReturnRows(sqlmock.NewRows(jobColumns).
			AddRow("KNDB9000", "kndb9000Job", "retired", nil, nil, nil, false))

	def, err := s.FindJobDefinition(context.Background(), "KNDB9000")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "KNDB9000", def.ID)
	assert.False(t, def.Enabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindJobDefinition_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(queryFindJobDefinition).
		WithArgs("JOBX").
		WillReturnError(sql.ErrNoRows)

	def, err := s.FindJobDefinition(context.Background(), "JOBX")
	require.NoError(t, err)
	assert.Nil(t, def)
}

func TestPostgres_FindMailConfig(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(queryFindMailConfig).
		WithArgs("KNDB4010").
		WillReturnRows(sqlmock.NewRows([]string{
			"job_id", "email_from", "mail_to_developer", "email_to_user", "mail_content_for_user",
		}).AddRow("KNDB4010", "batch@knpiano.example", "a@knpiano.example, b@knpiano.example", nil, "ready"))

	mc, err := s.FindMailConfig(context.Background(), "KNDB4010")
	require.NoError(t, err)
	require.NotNil(t, mc)
	assert.Equal(t, "batch@knpiano.example", mc.From)
	assert.Equal(t, []string{"a@knpiano.example", "b@knpiano.example"}, mc.Maintainers)
	assert.Empty(t, mc.Users)
	assert.Equal(t, "ready", mc.UserContent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindMailConfig_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(queryFindMailConfig).WithArgs("JOBX").WillReturnError(sql.ErrNoRows)

	mc, err := s.FindMailConfig(context.Background(), "JOBX")
	require.NoError(t, err)
	assert.Nil(t, mc)
}

func TestPostgres_Ping(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(queryPing).WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
