// Defines write stages and the error returned by a failed write.

package jsondb

import (
	"errors"
	"fmt"
)

// ErrLockTimeout is returned when the write lock could not be acquired within
// Options.LockTimeout.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// ErrUnreadable is returned by Modify when the primary document can't be read
// or doesn't decode into records although it is valid JSON.
var ErrUnreadable = errors.New("document unreadable")

// Stage identifies the step of a write attempt that failed.
type Stage string

const (
	// StageLock is acquiring the write lock.
	StageLock Stage = "lock"
	// StageBackup is copying the current document to the backup path.
	StageBackup Stage = "backup"
	// StageEncode is serializing the records.
	StageEncode Stage = "encode"
	// StageWrite is writing and syncing the staging file.
	StageWrite Stage = "write"
	// StageCommit is renaming the staging file over the primary.
	StageCommit Stage = "commit"
)

// WriteError is returned by Store and Modify when a write attempt fails.
//
// The primary document is left as it was before the attempt. Restored reports
// whether the primary had to be rewritten from the backup to get there.
type WriteError struct {
	Path     string
	Stage    Stage
	Restored bool
	Err      error
}

func (e *WriteError) Error() string {
	msg := fmt.Sprintf("failed to write %s at %s: %v", e.Path, e.Stage, e.Err)
	if e.Restored {
		msg += " (restored from backup)"
	}
	return msg
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
