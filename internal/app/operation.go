package app

import (
	"time"

	"snapsync/internal/snap"
)

// Operation tracks the run record of one snapshot command. It is created in
// memory and only written to the run store once the run actually starts, so
// a command rejected during setup leaves no history behind.
type Operation struct {
	Record    *snap.RunRecord
	persisted bool
}

// NewOperation creates an in-memory operation for job.
func NewOperation(id string, job *snap.SnapshotJob, startedAt time.Time) *Operation {
	return &Operation{Record: snap.NewRunRecord(id, job, startedAt)}
}

// Persisted returns true if this operation has been saved to the run store.
func (op *Operation) Persisted() bool {
	return op.persisted
}

// Start inserts the record in the "running" status.
func (op *Operation) Start(runs snap.RunStore) error {
	if op.persisted {
		return nil
	}
	if err := runs.CreateRun(op.Record); err != nil {
		return err
	}
	op.persisted = true
	return nil
}

// Finish copies the run outcome onto the record and stores it. An operation
// that was never started is not written.
func (op *Operation) Finish(runs snap.RunStore, res *snap.Result) error {
	op.Record.Apply(res)
	if !op.persisted {
		return nil
	}
	return runs.FinishRun(op.Record)
}
