package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/knpiano/knbatch/pkg/database/pool"
	"github.com/knpiano/knbatch/pkg/logger"
	"github.com/knpiano/knbatch/pkg/models/api"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"

	probeTimeout = 3 * time.Second
)

// Pinger is anything the health check can probe, usually a database
type Pinger interface {
	Ping(ctx context.Context) error
}

// statsReporter is a probe that also reports connection pool usage
type statsReporter interface {
	Stats() pool.Stats
}

// Handler handles health check requests
type Handler struct {
	logger *logger.Logger
	probes map[string]Pinger
}

// NewHandler creates a new health handler. Each probe is pinged on every
// request and reported under its name.
func NewHandler(log *logger.Logger, probes map[string]Pinger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		logger: log,
		probes: probes,
	}
}

// HealthCheck handles the /health endpoint
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	response := api.HealthResponse{
		Status:    StatusOK,
		Timestamp: time.Now(),
	}
	statusCode := http.StatusOK

	if len(h.probes) > 0 {
		response.Checks = make(map[string]string, len(h.probes))
		for name, probe := range h.probes {
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			err := probe.Ping(ctx)
			cancel()

			if err != nil {
				h.logger.Warn().
					Err(err).
					Str("action", "health_probe_failed").
					Str("probe", name).
					Msg("Health probe failed")
				response.Checks[name] = err.Error()
				response.Status = StatusDegraded
				statusCode = http.StatusServiceUnavailable
				continue
			}
			response.Checks[name] = StatusOK
		}

		for name, probe := range h.probes {
			if s, ok := probe.(statsReporter); ok {
				if response.Pools == nil {
					response.Pools = make(map[string]pool.Stats)
				}
				response.Pools[name] = s.Stats()
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error().
			Err(err).
			Str("action", "health_check_failed").
			Str("endpoint", "/health").
			Msg("Failed to encode health response")
		return
	}

	h.logger.Debug().
		Str("action", "health_check").
		Str("endpoint", "/health").
		Str("method", r.Method).
		Str("remote_addr", r.RemoteAddr).
		Int("status_code", statusCode).
		Dur("duration", time.Since(start)).
		Msg("Health check completed")
}
