package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knpiano/knbatch/pkg/database/pool"
	"github.com/knpiano/knbatch/pkg/models/api"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// poolProbe is a healthy database probe that also reports pool usage
type poolProbe struct {
	stats pool.Stats
}

func (p poolProbe) Ping(context.Context) error { return nil }

func (p poolProbe) Stats() pool.Stats { return p.stats }

func TestHealthCheck_ReportsPoolStats(t *testing.T) {
	h := NewHandler(nil, map[string]Pinger{
		"catalogue": pingerFunc(func(context.Context) error { return nil }),
		"handlers":  poolProbe{stats: pool.Stats{MaxConns: 8, AcquiredConns: 2, IdleConns: 1, TotalConns: 3}},
	})

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Pools, 1)
	assert.Equal(t, int32(8), resp.Pools["handlers"].MaxConns)
	assert.Equal(t, int32(2), resp.Pools["handlers"].AcquiredConns)
	assert.Equal(t, int32(3), resp.Pools["handlers"].TotalConns)
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		probes     map[string]Pinger
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no probes",
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
		},
		{
			name: "healthy database",
			probes: map[string]Pinger{
				"catalogue": pingerFunc(func(context.Context) error { return nil }),
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
			wantChecks: map[string]string{"catalogue": StatusOK},
		},
		{
			name: "database down",
			probes: map[string]Pinger{
				"catalogue": pingerFunc(func(context.Context) error { return nil }),
				"handlers":  pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusDegraded,
			wantChecks: map[string]string{"catalogue": StatusOK, "handlers": "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(nil, tt.probes)

			rec := httptest.NewRecorder()
			h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp api.HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantChecks, resp.Checks)
			assert.False(t, resp.Timestamp.IsZero())
		})
	}
}
