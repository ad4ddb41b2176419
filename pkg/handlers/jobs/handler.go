package jobs

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	batch "github.com/knpiano/knbatch/pkg/jobs"
	"github.com/knpiano/knbatch/pkg/logger"
	"github.com/knpiano/knbatch/pkg/models"
	"github.com/knpiano/knbatch/pkg/models/api"
)

// Catalogue is the read side of the job registry
type Catalogue interface {
	GetAllJobs() []models.JobDefinition
	GetJobInfo(id string) (models.JobDefinition, bool)
}

// Timers is the read side of the scheduler
type Timers interface {
	Entries() []batch.EntryInfo
	Pool() *batch.WorkerPool
}

// Handler serves the job listing
type Handler struct {
	catalogue Catalogue
	timers    Timers
	location  *time.Location
	logger    *logger.Logger
}

// NewHandler creates a jobs handler. timers may be nil when no scheduler runs.
func NewHandler(catalogue Catalogue, timers Timers, loc *time.Location, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		catalogue: catalogue,
		timers:    timers,
		location:  loc,
		logger:    log,
	}
}

// List handles GET /jobs
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entries := h.entries()
	defs := h.catalogue.GetAllJobs()

	response := api.JobsResponse{
		Jobs:      make([]api.JobResponse, 0, len(defs)),
		Total:     len(defs),
		Timestamp: time.Now(),
	}
	for _, def := range defs {
		job := toResponse(def, entries)
		if job.Scheduled {
			response.Scheduled++
		}
		response.Jobs = append(response.Jobs, job)
	}
	if h.timers != nil {
		pool := h.timers.Pool()
		response.Pool = &api.PoolResponse{
			Size:     pool.Size(),
			InFlight: pool.InFlight(),
			Waiting:  pool.Waiting(),
		}
	}
	if h.location != nil {
		response.TimeZone = h.location.String()
	}

	h.writeJSON(w, r, http.StatusOK, response)
}

// Get handles GET /jobs/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	def, ok := h.catalogue.GetJobInfo(id)
	if !ok {
		h.writeJSON(w, r, http.StatusNotFound, api.ErrorResponse{
			Error:   "not_found",
			Message: "no enabled job with id " + id,
		})
		return
	}
	h.writeJSON(w, r, http.StatusOK, toResponse(def, h.entries()))
}

func (h *Handler) entries() map[string]batch.EntryInfo {
	out := map[string]batch.EntryInfo{}
	if h.timers == nil {
		return out
	}
	for _, e := range h.timers.Entries() {
		out[e.JobID] = e
	}
	return out
}

func toResponse(def models.JobDefinition, entries map[string]batch.EntryInfo) api.JobResponse {
	job := api.JobResponse{
		ID:                def.ID,
		Handler:           def.HandlerRef,
		Description:       def.Description,
		TargetDescription: def.TargetDescription,
		CronExpression:    def.CronExpression,
		CronDescription:   def.CronDescription,
	}

	entry, ok := entries[def.ID]
	if !ok {
		return job
	}
	job.Scheduled = true
	job.CronDescription = entry.CronDescription
	if !entry.NextRun.IsZero() {
		next := entry.NextRun
		job.NextRun = &next
	}
	if !entry.PreviousRun.IsZero() {
		prev := entry.PreviousRun
		job.PreviousRun = &prev
	}
	return job
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().
			Err(err).
			Str("action", "encode_failed").
			Str("endpoint", r.URL.Path).
			Msg("Failed to encode response")
	}
}
