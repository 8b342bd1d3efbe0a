package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"snapsync/internal/archive"
	"snapsync/internal/config"
	"snapsync/internal/credential"
	"snapsync/internal/database"
	"snapsync/internal/encryption"
	"snapsync/internal/fs"
	"snapsync/internal/remote"
	"snapsync/internal/snap"
)

// Options tune how a SnapApp talks to the operator. Zero values select the
// real terminal, clock and ID generator.
type Options struct {
	Verbose  bool
	Console  io.Writer
	Prompter credential.Prompter
	Clock    snap.Clock
	IDs      snap.IDGenerator
}

// SnapApp is the application layer between the CLI and the snapshot pipeline.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the run store lifecycle on Close.
type SnapApp struct {
	cfg       *config.Config
	runs      snap.RunStore
	logger    *slog.Logger
	logCloser io.Closer
	verbose   bool
	prompter  credential.Prompter
	clock     snap.Clock
	ids       snap.IDGenerator
}

// NewSnapApp creates a fully wired SnapApp from the given config.
// The caller must call Close when done.
func NewSnapApp(cfg *config.Config, opts Options) (*SnapApp, error) {
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	if opts.Prompter == nil {
		opts.Prompter = credential.NewTerminalPrompter(os.Stdin, opts.Console)
	}
	if opts.Clock == nil {
		opts.Clock = snap.RealClock{}
	}
	if opts.IDs == nil {
		opts.IDs = snap.UUIDGenerator{}
	}

	runs, err := database.NewRunStoreFromConfig(cfg.Database, "snapsync")
	if err != nil {
		return nil, fmt.Errorf("creating run store: %w", err)
	}

	// Lines outside a snapshot carry an invocation ID; Snapshot switches to the
	// run ID stored in history.
	logger, logCloser, err := newLogger(cfg.LogDir, snap.NewRunID(opts.Clock, opts.IDs), opts.Verbose, opts.Console)
	if err != nil {
		runs.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	return &SnapApp{
		cfg:       cfg,
		runs:      runs,
		logger:    logger,
		logCloser: logCloser,
		verbose:   opts.Verbose,
		prompter:  opts.Prompter,
		clock:     opts.Clock,
		ids:       opts.IDs,
	}, nil
}

// projectName picks the project identity: the flag, then config, then the
// base name of the source root (resolved by snap.NewJob).
func (a *SnapApp) projectName(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.Name
}

// Snapshot resolves rawPath, runs the pipeline for it and records the run.
// The returned error covers setup and history problems; the pipeline outcome
// is in the Result.
func (a *SnapApp) Snapshot(ctx context.Context, rawPath, name string, exitOnSuccess bool) (*snap.Result, error) {
	job, err := snap.NewJob(rawPath, a.cfg.Snapshot.TempDir, a.projectName(name), a.cfg.Snapshot.Exclude)
	if err != nil {
		return nil, fmt.Errorf("preparing job: %w", err)
	}

	runID := snap.NewRunID(a.clock, a.ids)
	logger := withRunID(a.logger, runID)

	p, err := a.newPipeline(job, logger)
	if err != nil {
		return nil, err
	}

	op := NewOperation(runID, job, a.clock.Now())
	if err := op.Start(a.runs); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}

	logger.Info("run recorded", "source", job.SourceRoot)
	res := p.Run(ctx, job, snap.RunConfig{
		Verbose:       a.verbose,
		ExitOnSuccess: exitOnSuccess,
	})
	if res.Archive != nil {
		logger.Info("archive built", "size", humanize.IBytes(uint64(res.Archive.Size)), "entries", res.Archive.Entries)
	}

	if err := op.Finish(a.runs, res); err != nil {
		return res, fmt.Errorf("recording run outcome: %w", err)
	}
	return res, nil
}

func (a *SnapApp) newPipeline(job *snap.SnapshotJob, l *slog.Logger) (*snap.Pipeline, error) {
	logger := &slogAdapter{l: l}
	project := strings.TrimSuffix(job.LogicalName, snap.ArchiveExt)

	policy, err := snap.ParseDuplicatePolicy(a.cfg.Remote.OnDuplicate)
	if err != nil {
		return nil, err
	}

	archiver, err := archive.NewZipArchiver(a.cfg.Snapshot.CompressionLevel, logger)
	if err != nil {
		return nil, fmt.Errorf("creating archiver: %w", err)
	}

	creds, err := credential.NewManagerFromConfig(a.cfg, project, a.prompter, logger)
	if err != nil {
		return nil, fmt.Errorf("creating credential manager: %w", err)
	}

	conn, err := remote.NewConnectorFromConfig(a.cfg.Remote, a.clock, a.ids)
	if err != nil {
		return nil, fmt.Errorf("creating remote: %w", err)
	}

	var saver snap.Saver
	if a.cfg.Hooks.PreSnapshot != "" {
		saver = NewCommandSaver(a.cfg.Hooks.PreSnapshot, job.SourceRoot, logger)
	}

	syncer := snap.NewSyncer(conn, policy, logger)
	return snap.NewPipeline(saver, fs.NewCollector(logger), archiver, creds, syncer, logger, a.clock), nil
}

// Authenticate acquires a credential for the project without building a
// snapshot, running the interactive consent flow when needed.
func (a *SnapApp) Authenticate(ctx context.Context, name string) (*snap.RemoteCredential, error) {
	project := a.projectName(name)
	if project == "" {
		return nil, fmt.Errorf("a project name is required")
	}
	creds, err := credential.NewManagerFromConfig(a.cfg, project, a.prompter, &slogAdapter{l: a.logger})
	if err != nil {
		return nil, fmt.Errorf("creating credential manager: %w", err)
	}
	return creds.Acquire(ctx)
}

// GetHistory returns the most recent runs, newest first.
func (a *SnapApp) GetHistory(limit int) ([]*snap.RunRecord, error) {
	return a.runs.ListRuns(limit)
}

// Close closes the run store and the log file.
func (a *SnapApp) Close() error {
	var errs []error
	if err := a.runs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing run store: %w", err))
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file: %w", err))
		}
	}
	return errors.Join(errs...)
}

// GenerateIdentity creates the age identity that seals token files and
// returns its public recipient.
func GenerateIdentity(cfg *config.Config) (string, error) {
	if cfg.Credentials.IdentityPath == "" {
		return "", fmt.Errorf("credentials.identity_path is not set")
	}
	return encryption.NewAgeSealer(cfg.Credentials.IdentityPath).GenerateIdentity()
}

// Verify extracts the archive at archivePath into dest, which must not exist
// yet, and returns the number of entries written.
func Verify(archivePath, dest string) (int, error) {
	if _, err := os.Stat(dest); err == nil {
		return 0, fmt.Errorf("destination %s already exists", dest)
	}
	return archive.Extract(archivePath, dest)
}

// FormatRun renders a run record as one tab-separated history line.
func FormatRun(rec *snap.RunRecord) string {
	finished := "-"
	if rec.FinishedAt.Valid {
		finished = rec.FinishedAt.Time.UTC().Format("2006-01-02 15:04:05")
	}
	size := "-"
	if rec.ArchiveSize > 0 {
		size = humanize.IBytes(uint64(rec.ArchiveSize))
	}
	outcome := rec.Status
	switch {
	case rec.Status == "error":
		outcome = fmt.Sprintf("error in %s: %s", rec.FailedState, rec.Error)
	case rec.Action != "":
		outcome = fmt.Sprintf("%s %s", rec.Action, rec.RemoteID)
	}
	return strings.Join([]string{
		rec.StartedAt.UTC().Format("2006-01-02 15:04:05"),
		finished,
		rec.LogicalName,
		size,
		outcome,
	}, "\t")
}
