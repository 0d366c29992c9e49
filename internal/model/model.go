// Package model defines the types respec keeps in its run history: runs
// and the locations that failed in them.
package model

import "time"

// Run is one invocation of the test engine.
type Run struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Command   []string      `json:"command"`
	Dir       string        `json:"dir,omitempty"`
	ExitCode  int           `json:"exit_code"`
	// Tracked is set when the run updated the failure store.
	Tracked bool `json:"tracked"`
	// Rerun is set when the run replayed stored failures.
	Rerun    bool     `json:"rerun"`
	Failures []string `json:"failures,omitempty"`
}

// Passed reports whether the engine exited cleanly.
func (r Run) Passed() bool { return r.ExitCode == 0 }

// FlakyLocation aggregates how often a location failed across runs.
type FlakyLocation struct {
	Location   string    `json:"location"`
	Count      int       `json:"count"`
	Runs       int       `json:"runs"`
	LastFailed time.Time `json:"last_failed"`
}
