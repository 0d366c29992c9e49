package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRunPassed(t *testing.T) {
	if !(Run{ExitCode: 0}).Passed() {
		t.Error("exit 0 should pass")
	}
	if (Run{ExitCode: 1}).Passed() {
		t.Error("exit 1 should not pass")
	}
}

func TestRunJSONOmitsEmpty(t *testing.T) {
	r := Run{
		ID:        "r1",
		StartedAt: time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC),
		Command:   []string{"rspec", "spec"},
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"dir", "failures"} {
		if _, ok := m[key]; ok {
			t.Errorf("expected %q to be omitted, got %s", key, data)
		}
	}
	for _, key := range []string{"id", "started_at", "command", "exit_code", "tracked", "rerun"} {
		if _, ok := m[key]; !ok {
			t.Errorf("expected %q in %s", key, data)
		}
	}
}
