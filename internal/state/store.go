// Package state records pipeline runs in a local SQLite ledger: one row per
// run, per processed year and per fetched archive.
package state

import (
	"context"
	"time"
)

// RunStatus is the outcome of a pipeline run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	// RunStatusPartial means some years or the index build failed.
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// YearStatus is the outcome of one year within a run.
type YearStatus string

// Year status constants.
const (
	YearStatusLoaded YearStatus = "loaded"
	// YearStatusSkipped means no archive was located; prior facts were kept.
	YearStatusSkipped YearStatus = "skipped"
	// YearStatusPurged means no archive was located and prior facts were deleted.
	YearStatusPurged YearStatus = "purged"
	YearStatusFailed YearStatus = "failed"
)

// ArchiveStatus is the outcome of one archive within a year.
type ArchiveStatus string

// Archive status constants.
const (
	ArchiveStatusParsed ArchiveStatus = "parsed"
	ArchiveStatusEmpty  ArchiveStatus = "empty"
	ArchiveStatusFailed ArchiveStatus = "failed"
)

// Run is one pipeline execution.
type Run struct {
	ID          string
	Status      RunStatus
	FirstYear   int
	LastYear    int
	StartedAt   time.Time
	CompletedAt *time.Time
	// IndexDocuments is the number of documents written by the index build.
	IndexDocuments int
	Error          string
}

// Duration returns the run's wall time, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// YearOutcome is the ledger entry for one year of a run.
type YearOutcome struct {
	RunID       string
	Year        int
	Status      YearStatus
	Archives    int
	Tables      int
	Rows        int64
	DroppedRows int
	Error       string
	CompletedAt time.Time
}

// ArchiveOutcome is the ledger entry for one fetched archive.
type ArchiveOutcome struct {
	RunID   string
	Year    int
	URL     string
	Status  ArchiveStatus
	Bytes   int
	Skipped int
	Error   string
}

// Store is the run ledger consumed by the orchestrator and the CLI.
// Implementations are safe for concurrent use.
type Store interface {
	CreateRun(ctx context.Context, firstYear, lastYear int) (*Run, error)
	CompleteRun(ctx context.Context, id string, status RunStatus, indexDocuments int, errMsg string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	GetLatestRun(ctx context.Context) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	RecordYear(ctx context.Context, y *YearOutcome) error
	GetYearOutcomes(ctx context.Context, runID string) ([]*YearOutcome, error)
	RecordArchive(ctx context.Context, a *ArchiveOutcome) error
	GetArchiveOutcomes(ctx context.Context, runID string) ([]*ArchiveOutcome, error)

	Close() error
}
