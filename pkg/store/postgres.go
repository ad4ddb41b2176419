package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/knpiano/knbatch/pkg/logger"
	"github.com/knpiano/knbatch/pkg/models"
)

// Postgres reads the job catalogue and mail configuration maintained by the
// admin tooling. It implements jobs.DefinitionStore and notify.MailConfigStore.
type Postgres struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewPostgres creates a store over an open database handle
func NewPostgres(db *sql.DB, log *logger.Logger) *Postgres {
	if log == nil {
		log = logger.Nop()
	}
	return &Postgres{db: db, logger: log.WithComponent("catalogue-store")}
}

// OpenPostgres opens and pings a lib/pq connection for dsn
func OpenPostgres(ctx context.Context, dsn string, log *logger.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalogue database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping catalogue database: %w", err)
	}
	return NewPostgres(db, log), nil
}

// Close releases the database handle
func (s *Postgres) Close() error {
	return s.db.Close()
}

// Ping checks that the catalogue database answers
func (s *Postgres) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, queryPing).Scan(&one)
}

// LoadJobDefinitions returns every catalogued job, enabled or not
func (s *Postgres) LoadJobDefinitions(ctx context.Context) ([]models.JobDefinition, error) {
	start := time.Now()

	rows, err := s.db.QueryContext(ctx, queryLoadJobDefinitions)
	if err != nil {
		s.logger.LogDatabaseOperation("select", "t_batch_job_config", 0, time.Since(start), err)
		return nil, fmt.Errorf("failed to query job definitions: %w", err)
	}
	defer rows.Close()

	var defs []models.JobDefinition
	for rows.Next() {
		def, err := scanJobDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job definition: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read job definitions: %w", err)
	}

	s.logger.LogDatabaseOperation("select", "t_batch_job_config", int64(len(defs)), time.Since(start), nil)
	return defs, nil
}

// FindJobDefinition returns the job with the given id regardless of its
// enabled flag, or nil when there is none
func (s *Postgres) FindJobDefinition(ctx context.Context, id string) (*models.JobDefinition, error) {
	def, err := scanJobDefinition(s.db.QueryRowContext(ctx, queryFindJobDefinition, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job definition %s: %w", id, err)
	}
	return &def, nil
}

// FindMailConfig returns the job's mail row, or nil when there is none
func (s *Postgres) FindMailConfig(ctx context.Context, jobID string) (*models.MailConfig, error) {
	var (
		mc                           models.MailConfig
		from, developers, users, msg sql.NullString
	)

	err := s.db.QueryRowContext(ctx, queryFindMailConfig, jobID).Scan(&mc.JobID, &from, &developers, &users, &msg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find mail config for %s: %w", jobID, err)
	}

	mc.From = from.String
	mc.Maintainers = models.SplitAddresses(developers.String)
	mc.Users = models.SplitAddresses(users.String)
	mc.UserContent = msg.String
	return &mc, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJobDefinition(row scanner) (models.JobDefinition, error) {
	var (
		def                            models.JobDefinition
		cronExpr, cronDesc, targetDesc sql.NullString
	)

	err := row.Scan(
		&def.ID,
		&def.HandlerRef,
		&def.Description,
		&cronExpr,
		&cronDesc,
		&targetDesc,
		&def.Enabled,
	)
	if err != nil {
		return models.JobDefinition{}, err
	}

	def.CronExpression = cronExpr.String
	def.CronDescription = cronDesc.String
	def.TargetDescription = targetDesc.String
	return def, nil
}
