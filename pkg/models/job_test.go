package models

import (
	"testing"
	"time"
)

func TestJobDefinition_IsScheduled(t *testing.T) {
	tests := []struct {
		name string
		cron string
		want bool
	}{
		{"monthly", "0 0 1 1 * ?", true},
		{"empty", "", false},
		{"blank", "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := JobDefinition{ID: "JOBA", CronExpression: tt.cron}
			if got := d.IsScheduled(); got != tt.want {
				t.Errorf("IsScheduled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunContext_BaseTime(t *testing.T) {
	rc := RunContext{BaseDate: "20250615"}

	got, err := rc.BaseTime(time.UTC)
	if err != nil {
		t.Fatalf("BaseTime() error = %v", err)
	}
	if got.Year() != 2025 || got.Month() != time.June || got.Day() != 15 {
		t.Errorf("BaseTime() = %v, want 2025-06-15", got)
	}

	if _, err := (RunContext{BaseDate: "2025-06-15"}).BaseTime(time.UTC); err == nil {
		t.Error("expected error for dashed base date")
	}
}

func TestExecutionResult_Succeeded(t *testing.T) {
	if !(ExecutionResult{Status: StatusWarning}).Succeeded() {
		t.Error("warning runs should count as successful")
	}
	if (ExecutionResult{Status: StatusFailed}).Succeeded() {
		t.Error("failed runs should not count as successful")
	}
}

func TestSplitAddresses(t *testing.T) {
	got := SplitAddresses(" ops@example.com, ,dev@example.com ")
	if len(got) != 2 || got[0] != "ops@example.com" || got[1] != "dev@example.com" {
		t.Errorf("SplitAddresses() = %v", got)
	}
	if SplitAddresses("") != nil {
		t.Error("expected nil for empty list")
	}
}
