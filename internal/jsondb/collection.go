// Implements the load and store paths of a JSON collection.

package jsondb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// Source tells where the records returned by Read came from.
type Source int

const (
	// SourceMissing means no primary document exists yet.
	SourceMissing Source = iota
	// SourcePrimary means the primary document parsed.
	SourcePrimary
	// SourceBackup means the primary was unusable and the backup was used.
	SourceBackup
	// SourceEmpty means neither the primary nor the backup was usable.
	SourceEmpty
	// SourceUnreadable means the primary exists and is syntactically valid
	// JSON, or could not be read at all, yet did not yield records. It is left
	// untouched and Modify refuses to build on it.
	SourceUnreadable
)

func (s Source) String() string {
	switch s {
	case SourceMissing:
		return "missing"
	case SourcePrimary:
		return "primary"
	case SourceBackup:
		return "backup"
	case SourceEmpty:
		return "empty"
	case SourceUnreadable:
		return "unreadable"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

// Snapshot is the result of Read.
type Snapshot[T any] struct {
	// Records is never nil.
	Records []T
	Source  Source
	// Err is why the primary document could not be used. It is nil for
	// SourcePrimary and SourceMissing.
	Err error
}

// Observer receives events about a collection. Implementations must be safe
// for concurrent use.
type Observer interface {
	LockWaited(collection string, d time.Duration)
	Committed(collection string)
	WriteFailed(collection string, stage Stage)
	Recovered(collection string, src Source)
}

// Options configures a Collection. The zero value is usable.
type Options struct {
	// BackupPath defaults to "<path>.bak".
	BackupPath string
	// PollInterval is how often a blocked writer retries the lock. Defaults to
	// 100ms.
	PollInterval time.Duration
	// LockTimeout bounds how long a writer waits for the lock. 0 waits until the
	// context is done.
	LockTimeout time.Duration
	// StaleAfter is the heartbeat age after which a marker lock is considered
	// abandoned. Only used where flock(2) is unavailable. Defaults to 30s.
	StaleAfter time.Duration
	// Perm is the mode of newly created documents. Defaults to 0o644.
	Perm os.FileMode
	// Observer is optional.
	Observer Observer
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Collection is a durable sequence of T persisted as a JSON array.
//
// It is safe for concurrent use, including by several processes sharing the
// same path.
type Collection[T any] struct {
	path       string
	backupPath string
	lockPath   string
	tmpPath    string
	name       string
	opts       Options
	// sem serializes writers within the process; the file lock only excludes
	// other processes.
	sem chan struct{}

	// fault, when set, is called at the start of each write stage.
	fault func(Stage) error
}

// Open returns the collection stored at path, creating the parent directory.
// The document itself is created by the first Store.
func Open[T any](path string, opts *Options) (*Collection[T], error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	c := &Collection[T]{
		path:     path,
		lockPath: path + ".lock",
		tmpPath:  path + ".tmp",
		name:     filepath.Base(path),
		sem:      make(chan struct{}, 1),
	}
	if opts != nil {
		c.opts = *opts
	}
	c.backupPath = c.opts.BackupPath
	if c.backupPath == "" {
		c.backupPath = path + ".bak"
	}
	if c.opts.PollInterval <= 0 {
		c.opts.PollInterval = 100 * time.Millisecond
	}
	if c.opts.StaleAfter <= 0 {
		c.opts.StaleAfter = 30 * time.Second
	}
	if c.opts.Perm == 0 {
		c.opts.Perm = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return c, nil
}

// Path returns the primary document path.
func (c *Collection[T]) Path() string {
	return c.path
}

// BackupPath returns the backup document path.
func (c *Collection[T]) BackupPath() string {
	return c.backupPath
}

// Load returns the current records. It never fails: an unusable document
// yields the backup's records or an empty slice. Use Read to tell these cases
// apart.
func (c *Collection[T]) Load(ctx context.Context) []T {
	return c.Read(ctx).Records
}

// Read returns the current records and where they came from.
//
// When the primary is not valid JSON and the backup decodes, the primary is
// rewritten from the backup unless a writer currently holds the lock. A
// primary that is valid JSON but doesn't decode, or can't be read, is never
// replaced; the snapshot reports SourceUnreadable with no records.
func (c *Collection[T]) Read(ctx context.Context) *Snapshot[T] {
	return c.read(ctx, true)
}

func (c *Collection[T]) read(ctx context.Context, repair bool) *Snapshot[T] {
	data, err := os.ReadFile(c.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &Snapshot[T]{Records: []T{}, Source: SourceMissing}
	case err != nil:
		return c.unreadable(ctx, err)
	}
	records, err := decode[T](data)
	if err == nil {
		return &Snapshot[T]{Records: records, Source: SourcePrimary}
	}
	if json.Valid(data) {
		// Well formed but not a list of T; only syntax damage is corruption.
		return c.unreadable(ctx, err)
	}
	primaryErr := fmt.Errorf("failed to load %s: %w", c.path, err)
	c.logger().WarnContext(ctx, "Primary document corrupt, trying backup", "path", c.path, "err", err)

	bak, err := os.ReadFile(c.backupPath)
	if err == nil {
		records, perr := decode[T](bak)
		if perr == nil {
			c.observeRecovered(SourceBackup)
			if repair {
				c.repair(ctx, bak)
			}
			return &Snapshot[T]{Records: records, Source: SourceBackup, Err: primaryErr}
		}
		err = perr
	}
	c.logger().ErrorContext(ctx, "Backup unusable, returning empty collection", "path", c.backupPath, "err", err)
	c.observeRecovered(SourceEmpty)
	return &Snapshot[T]{Records: []T{}, Source: SourceEmpty, Err: primaryErr}
}

func (c *Collection[T]) unreadable(ctx context.Context, err error) *Snapshot[T] {
	c.logger().ErrorContext(ctx, "Primary document unreadable, leaving it untouched", "path", c.path, "err", err)
	return &Snapshot[T]{
		Records: []T{},
		Source:  SourceUnreadable,
		Err:     fmt.Errorf("%w: %s: %w", ErrUnreadable, c.path, err),
	}
}

// repair rewrites the primary from good when no writer is active.
func (c *Collection[T]) repair(ctx context.Context, good []byte) {
	select {
	case c.sem <- struct{}{}:
	default:
		return
	}
	defer func() { <-c.sem }()
	l, err := tryLock(c.lockPath, c.opts.StaleAfter)
	if err != nil {
		if !errors.Is(err, errLockBusy) && !errors.Is(err, errLockReplaced) {
			c.logger().WarnContext(ctx, "Skipping repair", "path", c.path, "err", err)
		}
		return
	}
	defer c.release(ctx, l)
	// A writer may have replaced the primary between our read and the lock.
	if data, err := os.ReadFile(c.path); err != nil || json.Valid(data) {
		return
	}
	if err := c.stage(good); err != nil {
		c.logger().WarnContext(ctx, "Failed to repair primary from backup", "path", c.path, "err", err)
		_ = os.Remove(c.tmpPath)
		return
	}
	if err := c.commit(); err != nil {
		c.logger().WarnContext(ctx, "Failed to repair primary from backup", "path", c.path, "err", err)
		_ = os.Remove(c.tmpPath)
		return
	}
	c.logger().InfoContext(ctx, "Repaired primary from backup", "path", c.path)
}

// Store replaces the whole collection with records.
//
// On failure the returned error is a *WriteError and the primary document
// still holds the previous collection.
func (c *Collection[T]) Store(ctx context.Context, records []T) error {
	return c.locked(ctx, func() error {
		return c.write(ctx, records)
	})
}

// Modify runs fn on the current records and stores the result, holding the
// write lock throughout. If fn returns an error nothing is written and the
// error is returned as is. An unreadable primary fails with ErrUnreadable
// before fn is called.
func (c *Collection[T]) Modify(ctx context.Context, fn func([]T) ([]T, error)) error {
	return c.locked(ctx, func() error {
		snap := c.read(ctx, false)
		if snap.Source == SourceUnreadable {
			return snap.Err
		}
		records, err := fn(snap.Records)
		if err != nil {
			return err
		}
		return c.write(ctx, records)
	})
}

func (c *Collection[T]) locked(ctx context.Context, fn func() error) error {
	start := time.Now()
	lctx := ctx
	if c.opts.LockTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, c.opts.LockTimeout)
		defer cancel()
	}
	select {
	case c.sem <- struct{}{}:
	case <-lctx.Done():
		return c.lockFailed(ctx, lctx.Err())
	}
	defer func() { <-c.sem }()
	l, err := acquireLock(lctx, c.lockPath, c.opts.PollInterval, c.opts.StaleAfter)
	if err != nil {
		return c.lockFailed(ctx, err)
	}
	defer c.release(ctx, l)
	if c.opts.Observer != nil {
		c.opts.Observer.LockWaited(c.name, time.Since(start))
	}
	return fn()
}

func (c *Collection[T]) lockFailed(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = ErrLockTimeout
	}
	return c.failed(ctx, &WriteError{Path: c.path, Stage: StageLock, Err: err})
}

func (c *Collection[T]) release(ctx context.Context, l *fileLock) {
	if err := l.release(); err != nil {
		c.logger().ErrorContext(ctx, "Failed to release lock", "path", c.lockPath, "err", err)
	}
}

// write must be called with the lock held.
func (c *Collection[T]) write(ctx context.Context, records []T) error {
	prev, err := os.ReadFile(c.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		prev = nil
	case err != nil:
		return c.abort(ctx, StageBackup, err, nil)
	case !json.Valid(prev):
		// Keep the last good backup rather than overwrite it with garbage.
		c.logger().WarnContext(ctx, "Primary document corrupt, keeping existing backup", "path", c.path)
		prev = nil
	}

	if err := c.inject(StageBackup); err != nil {
		return c.abort(ctx, StageBackup, err, prev)
	}
	if prev != nil {
		if err := atomic.WriteFile(c.backupPath, bytes.NewReader(prev)); err != nil {
			return c.abort(ctx, StageBackup, err, prev)
		}
	}

	if err := c.inject(StageEncode); err != nil {
		return c.abort(ctx, StageEncode, err, prev)
	}
	data, err := encode(records)
	if err != nil {
		return c.abort(ctx, StageEncode, err, prev)
	}

	if err := c.inject(StageWrite); err != nil {
		return c.abort(ctx, StageWrite, err, prev)
	}
	if err := c.stage(data); err != nil {
		return c.abort(ctx, StageWrite, err, prev)
	}

	if err := c.inject(StageCommit); err != nil {
		return c.abort(ctx, StageCommit, err, prev)
	}
	if err := c.commit(); err != nil {
		return c.abort(ctx, StageCommit, err, prev)
	}
	if c.opts.Observer != nil {
		c.opts.Observer.Committed(c.name)
	}
	c.logger().DebugContext(ctx, "Stored collection", "path", c.path, "records", len(records))
	return nil
}

// stage writes data to the staging file and flushes it to disk.
func (c *Collection[T]) stage(data []byte) error {
	f, err := os.OpenFile(c.tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, c.opts.Perm) //nolint:gosec // G304: path is derived from the collection path.
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// commit renames the staging file over the primary.
func (c *Collection[T]) commit() error {
	if err := atomic.ReplaceFile(c.tmpPath, c.path); err != nil {
		return err
	}
	syncDir(filepath.Dir(c.path))
	return nil
}

// abort cleans up after a failed write stage and puts prev back in place if
// the primary no longer holds it.
func (c *Collection[T]) abort(ctx context.Context, stage Stage, cause error, prev []byte) error {
	if err := os.Remove(c.tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger().WarnContext(ctx, "Failed to remove staging file", "path", c.tmpPath, "err", err)
	}
	werr := &WriteError{Path: c.path, Stage: stage, Err: cause}
	if prev != nil {
		restored, err := c.restore(prev)
		werr.Restored = restored
		if err != nil {
			werr.Err = errors.Join(cause, fmt.Errorf("failed to restore backup: %w", err))
		}
	}
	return c.failed(ctx, werr)
}

func (c *Collection[T]) restore(prev []byte) (bool, error) {
	if cur, err := os.ReadFile(c.path); err == nil && bytes.Equal(cur, prev) {
		return false, nil
	}
	if err := atomic.WriteFile(c.path, bytes.NewReader(prev)); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Collection[T]) failed(ctx context.Context, werr *WriteError) error {
	c.logger().ErrorContext(ctx, "Write failed", "path", c.path, "stage", string(werr.Stage), "restored", werr.Restored, "err", werr.Err)
	if c.opts.Observer != nil {
		c.opts.Observer.WriteFailed(c.name, werr.Stage)
	}
	return werr
}

func (c *Collection[T]) inject(s Stage) error {
	if c.fault == nil {
		return nil
	}
	return c.fault(s)
}

func (c *Collection[T]) observeRecovered(src Source) {
	if c.opts.Observer != nil {
		c.opts.Observer.Recovered(c.name, src)
	}
}

func (c *Collection[T]) logger() *slog.Logger {
	if c.opts.Logger != nil {
		return c.opts.Logger
	}
	return slog.Default()
}

func decode[T any](data []byte) ([]T, error) {
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

func encode[T any](records []T) ([]byte, error) {
	if records == nil {
		records = []T{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// syncDir flushes the directory entry after a rename. Not all platforms
// support it, so errors are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // G304: dir is the collection's parent directory.
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
