package jobs

import (
	"context"
	"sort"
	"strings"

	"github.com/knpiano/knbatch/pkg/logger"
	"github.com/knpiano/knbatch/pkg/models"
)

// Registry is the frozen, in-memory index of enabled job definitions.
// It is built once by LoadRegistry and only read afterwards, so reads need no locking.
type Registry struct {
	jobs map[string]models.JobDefinition
	ids  []string
}

// LoadRegistry reads every definition from store, validates the whole set and
// keeps the enabled ones. Any store or validation error is a configuration
// error: a process that cannot know its own catalogue must not start.
func LoadRegistry(ctx context.Context, store DefinitionStore, log *logger.Logger) (*Registry, error) {
	if store == nil {
		return nil, configurationErrorf("job definition store is not configured")
	}
	if log == nil {
		log = logger.Nop()
	}

	log.Info().Str("action", "registry_load_start").Msg("Loading batch job registry")

	defs, err := store.LoadJobDefinitions(ctx)
	if err != nil {
		log.Error().Err(err).Str("action", "registry_load_failed").Msg("Failed to load job definitions")
		return nil, wrapConfiguration(err, "failed to load job definitions")
	}

	if err := validateDefinitions(defs); err != nil {
		log.Error().Err(err).Str("action", "registry_validation_failed").Msg("Job catalogue failed validation")
		return nil, err
	}

	r := &Registry{jobs: make(map[string]models.JobDefinition, len(defs))}
	for _, def := range defs {
		if !def.Enabled {
			log.Info().
				Str("action", "job_skipped_disabled").
				Str("job_id", def.ID).
				Str("description", def.Description).
				Msg("Skipping disabled batch job")
			continue
		}

		if expected := strings.ToLower(def.ID) + "Job"; def.HandlerRef != expected {
			log.Warn().
				Str("job_id", def.ID).
				Str("handler_ref", def.HandlerRef).
				Str("expected", expected).
				Msg("Handler reference does not follow the naming convention")
		}

		r.jobs[def.ID] = def
		r.ids = append(r.ids, def.ID)

		log.Info().
			Str("action", "job_registered").
			Str("job_id", def.ID).
			Str("handler_ref", def.HandlerRef).
			Str("description", def.Description).
			Str("cron", def.CronExpression).
			Msg("Registered batch job")
	}
	sort.Strings(r.ids)

	log.Info().
		Str("action", "registry_load_complete").
		Int("enabled_jobs", len(r.ids)).
		Int("total_definitions", len(defs)).
		Msg("Batch job registry ready")

	return r, nil
}

// NewRegistry builds a registry from already loaded definitions. Used by tests
// and tools; it applies the same validation and filtering as LoadRegistry.
func NewRegistry(defs []models.JobDefinition) (*Registry, error) {
	return LoadRegistry(context.Background(), staticStore(defs), logger.Nop())
}

func validateDefinitions(defs []models.JobDefinition) error {
	seen := make(map[string]struct{}, len(defs))
	for i, def := range defs {
		switch {
		case strings.TrimSpace(def.ID) == "":
			return configurationErrorf("job definition #%d: missing id", i+1)
		case strings.TrimSpace(def.HandlerRef) == "":
			return configurationErrorf("job definition %s: missing handler reference", def.ID)
		case strings.TrimSpace(def.Description) == "":
			return configurationErrorf("job definition %s: missing description", def.ID)
		}

		if _, dup := seen[def.ID]; dup {
			return configurationErrorf("job definition %s: duplicate id", def.ID)
		}
		seen[def.ID] = struct{}{}
	}
	return nil
}

// GetJobInfo returns the enabled definition with the given id
func (r *Registry) GetJobInfo(id string) (models.JobDefinition, bool) {
	def, ok := r.jobs[id]
	return def, ok
}

// GetAllJobs returns every enabled definition ordered by id
func (r *Registry) GetAllJobs() []models.JobDefinition {
	out := make([]models.JobDefinition, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.jobs[id])
	}
	return out
}

// IsJobRegistered reports whether id is an enabled job
func (r *Registry) IsJobRegistered(id string) bool {
	_, ok := r.jobs[id]
	return ok
}

// GetScheduledJobs returns the enabled definitions that carry a cron expression
func (r *Registry) GetScheduledJobs() []models.JobDefinition {
	var out []models.JobDefinition
	for _, id := range r.ids {
		if def := r.jobs[id]; def.IsScheduled() {
			out = append(out, def)
		}
	}
	return out
}

// EnabledJobIDs returns the sorted ids of all enabled jobs
func (r *Registry) EnabledJobIDs() []string {
	return append([]string(nil), r.ids...)
}

// Count returns the number of enabled jobs
func (r *Registry) Count() int {
	return len(r.ids)
}

// GetJobInfoByHandlerRef returns the first enabled definition bound to handlerRef
func (r *Registry) GetJobInfoByHandlerRef(handlerRef string) (models.JobDefinition, bool) {
	for _, id := range r.ids {
		if def := r.jobs[id]; def.HandlerRef == handlerRef {
			return def, true
		}
	}
	return models.JobDefinition{}, false
}

type staticStore []models.JobDefinition

func (s staticStore) LoadJobDefinitions(context.Context) ([]models.JobDefinition, error) {
	return s, nil
}

func (s staticStore) FindJobDefinition(_ context.Context, id string) (*models.JobDefinition, error) {
	for i := range s {
		if s[i].ID == id {
			def := s[i]
			return &def, nil
		}
	}
	return nil, nil
}
