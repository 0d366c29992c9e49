// Package store defines the storage interface for respec's run history.
package store

import (
	"context"
	"time"

	"github.com/scbrown/respec/internal/model"
)

// Store is the persistence interface for runs and their failures.
type Store interface {
	// RecordRun persists a finished run and its failing locations.
	RecordRun(ctx context.Context, r model.Run) error

	// ListRuns returns runs matching the given filter options, newest first.
	ListRuns(ctx context.Context, opts ListOpts) ([]model.Run, error)

	// FlakyLocations returns locations ranked by how often they failed.
	FlakyLocations(ctx context.Context, opts FlakyOpts) ([]model.FlakyLocation, error)

	// Stats returns summary statistics over all recorded runs.
	Stats(ctx context.Context) (Stats, error)

	// Close releases any resources held by the store.
	Close() error
}

// ListOpts controls filtering for ListRuns.
type ListOpts struct {
	Since      time.Time // Only runs started after this time.
	Dir        string    // Filter by working directory.
	FailedOnly bool      // Only runs with a non-zero exit code.
	Limit      int       // Maximum results; 0 means no limit.
}

// FlakyOpts controls filtering for FlakyLocations.
type FlakyOpts struct {
	Top   int       // Maximum locations to return; 0 means no limit.
	Since time.Time // Only count failures in runs after this time.
	Dir   string    // Filter by working directory.
}

// Stats holds summary statistics about the run history.
type Stats struct {
	TotalRuns       int           `json:"total_runs"`
	PassedRuns      int           `json:"passed_runs"`
	FailedRuns      int           `json:"failed_runs"`
	RerunRuns       int           `json:"rerun_runs"`
	TotalDuration   time.Duration `json:"total_duration"`
	UniqueLocations int           `json:"unique_locations"`
	Earliest        time.Time     `json:"earliest"`
	Latest          time.Time     `json:"latest"`
	Last24h         int           `json:"last_24h"`
	Last7d          int           `json:"last_7d"`
	Last30d         int           `json:"last_30d"`
}
