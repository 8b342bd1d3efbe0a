package snap

import (
	"errors"
	"fmt"
)

var (
	// ErrCollision reports that a staging directory or archive file already
	// occupies a path the archiver needs. The existing path is left untouched.
	ErrCollision = errors.New("path already exists")

	// ErrDuplicateRemote reports more than one remote object with the same
	// logical name when the duplicate policy is "fail".
	ErrDuplicateRemote = errors.New("duplicate remote objects")

	// ErrNotInteractive reports that an interactive authorization was needed
	// but no terminal is attached.
	ErrNotInteractive = errors.New("interactive authorization requires a terminal")
)

// CollectionError reports a failure to enumerate the source tree.
type CollectionError struct {
	Op  string
	Err error
}

func (e *CollectionError) Error() string { return fmt.Sprintf("collection: %s: %v", e.Op, e.Err) }
func (e *CollectionError) Unwrap() error { return e.Err }

// ArchiveError reports a staging or compression failure, including path collisions.
type ArchiveError struct {
	Op  string
	Err error
}

func (e *ArchiveError) Error() string { return fmt.Sprintf("archive: %s: %v", e.Op, e.Err) }
func (e *ArchiveError) Unwrap() error { return e.Err }

// AuthError reports a failure to obtain a credential for the remote store.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth: %s: %v", e.Op, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// SyncError reports a remote list, create or update failure.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string { return fmt.Sprintf("sync: %s: %v", e.Op, e.Err) }
func (e *SyncError) Unwrap() error { return e.Err }
