package snap

import (
	"database/sql"
	"time"
)

// RunRecord is the persisted summary of one pipeline run.
type RunRecord struct {
	ID          string
	LogicalName string
	SourceRoot  string
	StartedAt   time.Time
	FinishedAt  sql.NullTime
	Status      string // "running", "success" or "error"
	FailedState string // state the run failed in, empty on success
	Action      string
	RemoteID    string
	ArchiveSize int64
	Error       string
}

// RunStore records run history. Writes happen only from the run that owns the record.
type RunStore interface {
	// CreateRun inserts a record in the "running" status.
	CreateRun(rec *RunRecord) error

	// FinishRun stores the outcome of a run.
	FinishRun(rec *RunRecord) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(limit int) ([]*RunRecord, error)

	// FindRun returns the run with the given ID, or nil if none exists.
	FindRun(id string) (*RunRecord, error)

	Close() error
}

// NewRunRecord starts a record for a job.
func NewRunRecord(id string, job *SnapshotJob, startedAt time.Time) *RunRecord {
	return &RunRecord{
		ID:          id,
		LogicalName: job.LogicalName,
		SourceRoot:  job.SourceRoot,
		StartedAt:   startedAt,
		Status:      "running",
	}
}

// Apply copies the outcome of a pipeline run onto the record.
func (rec *RunRecord) Apply(res *Result) {
	if !res.FinishedAt.IsZero() {
		rec.FinishedAt = sql.NullTime{Time: res.FinishedAt, Valid: true}
	}
	if res.Archive != nil {
		rec.ArchiveSize = res.Archive.Size
	}
	if res.Sync != nil {
		rec.Action = string(res.Sync.Action)
		rec.RemoteID = res.Sync.Object.ID
	}
	if res.Err != nil {
		rec.Status = "error"
		rec.FailedState = res.FailedIn.String()
		rec.Error = res.Err.Error()
		return
	}
	rec.Status = "success"
}
