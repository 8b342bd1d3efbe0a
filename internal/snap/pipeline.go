package snap

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RunConfig carries the operator's toggles for a single run.
type RunConfig struct {
	// Verbose surfaces per-stage progress messages to the operator.
	Verbose bool
	// ExitOnSuccess asks the caller to terminate its host process after a successful run.
	ExitOnSuccess bool
	// Observer, if set, receives every state transition.
	Observer Observer
}

// Result is the outcome of one pipeline run.
type Result struct {
	Job     *SnapshotJob
	State   State
	Path    []State
	Archive *ArchiveInfo
	Sync    *SyncResult
	Err     error
	// FailedIn is the state the run was in when it failed; StateIdle on success.
	FailedIn   State
	CleanedUp  bool
	StartedAt  time.Time
	FinishedAt time.Time

	exitOnSuccess bool
}

// Succeeded reports whether the snapshot reached the remote store and local
// state was cleaned up.
func (r *Result) Succeeded() bool {
	return r.Err == nil && r.State == StateDone
}

// ExitRequested reports whether the caller should terminate its host process.
func (r *Result) ExitRequested() bool {
	return r.exitOnSuccess && r.Succeeded()
}

// Pipeline is the orchestration layer that drives one snapshot through
// collection, archiving, authentication, sync and cleanup.
// Stages run strictly in sequence; each fails fast.
type Pipeline struct {
	saver     Saver
	collector Collector
	archiver  Archiver
	creds     CredentialManager
	syncer    *Syncer
	logger    Logger
	clock     Clock
}

// NewPipeline creates a Pipeline with the provided dependencies.
// saver may be nil when no application state needs saving before collection.
func NewPipeline(saver Saver, collector Collector, archiver Archiver, creds CredentialManager, syncer *Syncer, logger Logger, clock Clock) *Pipeline {
	return &Pipeline{
		saver:     saver,
		collector: collector,
		archiver:  archiver,
		creds:     creds,
		syncer:    syncer,
		logger:    logger,
		clock:     clock,
	}
}

// run tracks the state of a single Run call.
type run struct {
	p      *Pipeline
	cfg    RunConfig
	result *Result
}

func (r *run) enter(s State, err error) {
	from := r.result.State
	r.result.State = s
	r.result.Path = append(r.result.Path, s)
	r.p.logger.Debug("state transition", "from", from.String(), "to", s.String())
	if r.cfg.Observer != nil {
		r.cfg.Observer(Transition{From: from, To: s, Err: err})
	}
}

// fail moves the run to Failed and then to CleaningUp or Done depending on
// whether the failing stage owns local staging state.
func (r *run) fail(err error) *Result {
	failedIn := r.result.State
	r.result.FailedIn = failedIn
	r.result.Err = err
	r.p.logger.Error("snapshot failed", "state", failedIn.String(), "error", err)
	r.enter(StateFailed, err)

	if failedIn.ownsLocalState() {
		r.cleanup()
	}
	r.enter(StateDone, nil)
	r.result.FinishedAt = r.p.clock.Now()
	return r.result
}

func (r *run) cleanup() {
	r.enter(StateCleaningUp, nil)
	if err := Cleanup(r.result.Job); err != nil {
		r.p.logger.Error("cleanup failed", "error", err)
		r.result.Err = errors.Join(r.result.Err, fmt.Errorf("cleanup: %w", err))
		if r.result.FailedIn == StateIdle {
			r.result.FailedIn = StateCleaningUp
		}
		return
	}
	r.result.CleanedUp = true
	detail(r.p.logger, r.cfg.Verbose, "cleanup complete", "staging", r.result.Job.StagingRoot, "archive", r.result.Job.ArchivePath)
}

// Run executes the pipeline for job. It never panics on stage failure; the
// outcome, including the typed stage error, is reported in the Result.
// Cancelling ctx during authentication or upload still removes local state.
func (p *Pipeline) Run(ctx context.Context, job *SnapshotJob, cfg RunConfig) *Result {
	r := &run{
		p:   p,
		cfg: cfg,
		result: &Result{
			Job:           job,
			State:         StateIdle,
			Path:          []State{StateIdle},
			StartedAt:     p.clock.Now(),
			exitOnSuccess: cfg.ExitOnSuccess,
		},
	}
	p.logger.Info("snapshot started", "source", job.SourceRoot, "name", job.LogicalName)

	r.enter(StateCollecting, nil)
	if p.saver != nil {
		if err := p.saver.Save(ctx); err != nil {
			return r.fail(&CollectionError{Op: "save application state", Err: err})
		}
		detail(p.logger, cfg.Verbose, "save complete")
	}
	if err := ctx.Err(); err != nil {
		return r.fail(&CollectionError{Op: "collect", Err: err})
	}
	entries, err := p.collector.Collect(ctx, job)
	if err != nil {
		return r.fail(asStageError(err, func(e error) error { return &CollectionError{Op: "collect", Err: e} }))
	}
	detail(p.logger, cfg.Verbose, "collection complete", "entries", len(entries))

	r.enter(StateArchiving, nil)
	info, err := p.archiver.Build(ctx, job, entries)
	if err != nil {
		return r.fail(asStageError(err, func(e error) error { return &ArchiveError{Op: "build", Err: e} }))
	}
	r.result.Archive = info
	detail(p.logger, cfg.Verbose, "archive complete", "path", info.Path, "size", info.Size, "entries", info.Entries)

	r.enter(StateAuthenticating, nil)
	cred, err := p.creds.Acquire(ctx)
	if err != nil {
		return r.fail(asStageError(err, func(e error) error { return &AuthError{Op: "acquire", Err: e} }))
	}
	detail(p.logger, cfg.Verbose, "credential acquired", "provider", cred.Provider)

	r.enter(StateSyncing, nil)
	res, err := p.syncer.Sync(ctx, job.ArchivePath, job.LogicalName, cred)
	if err != nil {
		return r.fail(err)
	}
	r.result.Sync = res
	detail(p.logger, cfg.Verbose, fmt.Sprintf("%s file with ID: %s", res.Action, res.Object.ID))

	r.cleanup()
	r.enter(StateDone, nil)
	r.result.FinishedAt = p.clock.Now()
	if r.result.Err == nil {
		p.logger.Info("snapshot complete", "name", job.LogicalName, "id", res.Object.ID, "action", string(res.Action))
	}
	return r.result
}

// asStageError keeps an error that is already one of the typed stage errors
// and wraps anything else with wrap.
func asStageError(err error, wrap func(error) error) error {
	var (
		ce *CollectionError
		ae *ArchiveError
		ue *AuthError
		se *SyncError
	)
	if errors.As(err, &ce) || errors.As(err, &ae) || errors.As(err, &ue) || errors.As(err, &se) {
		return err
	}
	return wrap(err)
}
