package store

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/knpiano/knbatch/pkg/logger"
	"github.com/knpiano/knbatch/pkg/models"
)

// File reads the job catalogue from a YAML document:
//
//	jobs:
//	  - id: KNDB1010
//	    handler: kndb1010Job
//	    description: lesson fee correction
//	    cron: "0 0 1 1 * ?"
//	mail:
//	  - job_id: KNDB1010
//	    from: batch@example.com
//	    maintainers: dev@example.com
//
// The file is read on every call; the registry loads it once at startup.
type File struct {
	path   string
	logger *logger.Logger
}

type fileCatalogue struct {
	Jobs []fileJob  `yaml:"jobs"`
	Mail []fileMail `yaml:"mail"`
}

type fileJob struct {
	ID                string `yaml:"id"`
	Handler           string `yaml:"handler"`
	Description       string `yaml:"description"`
	Cron              string `yaml:"cron"`
	CronDescription   string `yaml:"cron_description"`
	TargetDescription string `yaml:"target_description"`
	// Enabled defaults to true when omitted
	Enabled *bool `yaml:"enabled"`
}

type fileMail struct {
	JobID       string `yaml:"job_id"`
	From        string `yaml:"from"`
	Maintainers string `yaml:"maintainers"`
	Users       string `yaml:"users"`
	UserContent string `yaml:"user_content"`
}

// NewFile creates a store for the catalogue at path
func NewFile(path string, log *logger.Logger) *File {
	if log == nil {
		log = logger.Nop()
	}
	return &File{path: path, logger: log.WithComponent("catalogue-file")}
}

func (f *File) read() (*fileCatalogue, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job catalogue %s: %w", f.path, err)
	}

	var cat fileCatalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse job catalogue %s: %w", f.path, err)
	}
	return &cat, nil
}

// LoadJobDefinitions returns every job in the file, enabled or not
func (f *File) LoadJobDefinitions(ctx context.Context) ([]models.JobDefinition, error) {
	cat, err := f.read()
	if err != nil {
		return nil, err
	}

	defs := make([]models.JobDefinition, 0, len(cat.Jobs))
	for i, j := range cat.Jobs {
		switch {
		case strings.TrimSpace(j.ID) == "":
			return nil, fmt.Errorf("job catalogue %s: entry #%d is missing id", f.path, i+1)
		case strings.TrimSpace(j.Handler) == "":
			return nil, fmt.Errorf("job catalogue %s: job %s is missing handler", f.path, j.ID)
		case strings.TrimSpace(j.Description) == "":
			return nil, fmt.Errorf("job catalogue %s: job %s is missing description", f.path, j.ID)
		}

		enabled := true
		if j.Enabled != nil {
			enabled = *j.Enabled
		}

		defs = append(defs, models.JobDefinition{
			ID:                strings.TrimSpace(j.ID),
			HandlerRef:        strings.TrimSpace(j.Handler),
			Description:       strings.TrimSpace(j.Description),
			CronExpression:    strings.TrimSpace(j.Cron),
			CronDescription:   j.CronDescription,
			TargetDescription: j.TargetDescription,
			Enabled:           enabled,
		})
	}

	f.logger.Debug().
		Str("path", f.path).
		Int("jobs", len(defs)).
		Msg("Read job catalogue file")
	return defs, nil
}

// FindJobDefinition returns the job with the given id regardless of its
// enabled flag, or nil when there is none
func (f *File) FindJobDefinition(ctx context.Context, id string) (*models.JobDefinition, error) {
	defs, err := f.LoadJobDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range defs {
		if defs[i].ID == id {
			return &defs[i], nil
		}
	}
	return nil, nil
}

// FindMailConfig returns the job's mail entry, or nil when there is none
func (f *File) FindMailConfig(ctx context.Context, jobID string) (*models.MailConfig, error) {
	cat, err := f.read()
	if err != nil {
		return nil, err
	}
	for _, m := range cat.Mail {
		if m.JobID != jobID {
			continue
		}
		return &models.MailConfig{
			JobID:       m.JobID,
			From:        m.From,
			Maintainers: models.SplitAddresses(m.Maintainers),
			Users:       models.SplitAddresses(m.Users),
			UserContent: m.UserContent,
		}, nil
	}
	return nil, nil
}
