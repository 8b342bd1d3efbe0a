package snap

import (
	"context"
	"fmt"
	"io"
	"os"
)

// DuplicatePolicy decides what the sync client does when more than one
// remote object carries the logical name.
type DuplicatePolicy string

const (
	// DuplicateFirst updates the first match in listing order and leaves the rest alone.
	DuplicateFirst DuplicatePolicy = "first"
	// DuplicateFail refuses to modify anything.
	DuplicateFail DuplicatePolicy = "fail"
)

// ParseDuplicatePolicy maps a config value to a DuplicatePolicy. Empty means DuplicateFirst.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(s) {
	case "", DuplicateFirst:
		return DuplicateFirst, nil
	case DuplicateFail:
		return DuplicateFail, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy: %q", s)
	}
}

// SyncAction records which branch of the sync ran.
type SyncAction string

const (
	ActionCreated SyncAction = "created"
	ActionUpdated SyncAction = "updated"
)

// SyncResult is the outcome of a successful sync.
type SyncResult struct {
	Object RemoteObject
	Action SyncAction
	// Duplicates is the number of extra matches that were left untouched.
	Duplicates int
}

// Syncer uploads an archive under its logical name, creating the remote
// object when none exists and updating it in place otherwise.
type Syncer struct {
	connector Connector
	policy    DuplicatePolicy
	logger    Logger
}

// NewSyncer creates a Syncer. An empty policy behaves as DuplicateFirst.
func NewSyncer(connector Connector, policy DuplicatePolicy, logger Logger) *Syncer {
	if policy == "" {
		policy = DuplicateFirst
	}
	return &Syncer{
		connector: connector,
		policy:    policy,
		logger:    logger,
	}
}

// Sync uploads the archive at archivePath as logicalName. Every failure is
// returned as a *SyncError; nothing is retried.
func (s *Syncer) Sync(ctx context.Context, archivePath, logicalName string, cred *RemoteCredential) (*SyncResult, error) {
	store, err := s.connector.Connect(ctx, cred)
	if err != nil {
		return nil, &SyncError{Op: "connect", Err: err}
	}

	matches, err := store.List(ctx, logicalName)
	if err != nil {
		return nil, &SyncError{Op: "list", Err: err}
	}

	duplicates := 0
	if len(matches) > 1 {
		duplicates = len(matches) - 1
		if s.policy == DuplicateFail {
			return nil, &SyncError{Op: "list", Err: fmt.Errorf("%w: %d objects named %q", ErrDuplicateRemote, len(matches), logicalName)}
		}
		s.logger.Warn("duplicate remote objects, updating first match", "name", logicalName, "count", len(matches), "id", matches[0].ID)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, &SyncError{Op: "open archive", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &SyncError{Op: "stat archive", Err: err}
	}

	meta := ObjectMeta{
		Name:        logicalName,
		ContentType: ArchiveContentType,
		Size:        info.Size(),
	}
	body := &countingReader{ctx: ctx, r: f}

	var (
		obj    *RemoteObject
		action SyncAction
		op     string
	)
	if len(matches) == 0 {
		op, action = "create", ActionCreated
		obj, err = store.Create(ctx, meta, body)
	} else {
		op, action = "update", ActionUpdated
		obj, err = store.Update(ctx, matches[0].ID, meta, body)
	}
	if err != nil {
		return nil, &SyncError{Op: op, Err: err}
	}
	if body.n != meta.Size {
		return nil, &SyncError{Op: op, Err: fmt.Errorf("upload interrupted: sent %d of %d bytes", body.n, meta.Size)}
	}

	s.logger.Info("snapshot synced", "name", logicalName, "id", obj.ID, "action", string(action), "size", meta.Size)
	return &SyncResult{
		Object:     *obj,
		Action:     action,
		Duplicates: duplicates,
	}, nil
}

// countingReader counts bytes handed to the store and stops the stream once
// ctx is cancelled, so an aborted run cannot finish an upload.
type countingReader struct {
	ctx context.Context
	r   io.Reader
	n   int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
