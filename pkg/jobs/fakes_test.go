package jobs

import (
	"context"
	"sync"

	"github.com/knpiano/knbatch/pkg/models"
)

type mockStore struct {
	defs    []models.JobDefinition
	loadErr error
	findErr error

	mu    sync.Mutex
	finds []string
}

func (m *mockStore) LoadJobDefinitions(ctx context.Context) ([]models.JobDefinition, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.defs, nil
}

func (m *mockStore) FindJobDefinition(ctx context.Context, id string) (*models.JobDefinition, error) {
	m.mu.Lock()
	m.finds = append(m.finds, id)
	m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}
	for i := range m.defs {
		if m.defs[i].ID == id {
			def := m.defs[i]
			return &def, nil
		}
	}
	return nil, nil
}

func (m *mockStore) findCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.finds...)
}

type report struct {
	jobID       string
	description string
	success     bool
	logText     string
}

type mockReporter struct {
	mu      sync.Mutex
	reports []report
	panics  bool
}

func (m *mockReporter) Report(ctx context.Context, jobID, description string, success bool, logText string) {
	m.mu.Lock()
	m.reports = append(m.reports, report{jobID, description, success, logText})
	m.mu.Unlock()

	if m.panics {
		panic("smtp exploded")
	}
}

func (m *mockReporter) all() []report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]report(nil), m.reports...)
}

type mockObserver struct {
	mu     sync.Mutex
	events []string
	after  []models.ExecutionResult
	panics bool
}

func (m *mockObserver) BeforeRun(ctx context.Context, rc models.RunContext) {
	m.mu.Lock()
	m.events = append(m.events, "before:"+rc.BusinessModule)
	m.mu.Unlock()

	if m.panics {
		panic("nats connection gone")
	}
}

func (m *mockObserver) AfterRun(ctx context.Context, rc models.RunContext, result models.ExecutionResult) {
	m.mu.Lock()
	m.events = append(m.events, "after:"+rc.BusinessModule)
	m.after = append(m.after, result)
	m.mu.Unlock()

	if m.panics {
		panic("nats connection gone")
	}
}

// countingHandler records every context it was invoked with
type countingHandler struct {
	mu    sync.Mutex
	calls []models.RunContext
	run   func(ctx context.Context, rc models.RunContext, out *RunLog) (Outcome, error)
}

func (h *countingHandler) Execute(ctx context.Context, rc models.RunContext, out *RunLog) (Outcome, error) {
	h.mu.Lock()
	h.calls = append(h.calls, rc)
	h.mu.Unlock()

	if h.run != nil {
		return h.run(ctx, rc, out)
	}
	return Outcome{Status: models.StatusCompleted}, nil
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func definition(id, cron string, enabled bool) models.JobDefinition {
	return models.JobDefinition{
		ID:             id,
		HandlerRef:     lowerJob(id),
		Description:    id + " maintenance",
		CronExpression: cron,
		Enabled:        enabled,
	}
}

func lowerJob(id string) string {
	out := []byte(id)
	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c + ('a' - 'A')
		}
	}
	return string(out) + "Job"
}
