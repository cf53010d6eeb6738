//go:build unix

package jsondb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// fileLock is an flock(2) held on the lock file. The kernel drops it when the
// holder exits, so a crashed writer never blocks the next one.
type fileLock struct {
	f    *os.File
	path string
}

func tryLock(path string, _ time.Duration) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600) //nolint:gosec // G304: path is derived from the collection path.
	if err != nil {
		return nil, wrapLockErr(path, err)
	}
	if err := flock(f, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errLockBusy
		}
		return nil, wrapLockErr(path, err)
	}
	// The previous holder unlinks the file on release. If it did so between our
	// open and flock, we locked an orphaned inode.
	same, err := sameFile(f, path)
	if err != nil || !same {
		_ = flock(f, unix.LOCK_UN)
		_ = f.Close()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, wrapLockErr(path, err)
		}
		return nil, errLockReplaced
	}
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt(holderInfo(), 0)
	}
	return &fileLock{f: f, path: path}, nil
}

// release unlinks the lock file before unlocking it.
func (l *fileLock) release() error {
	var errs []error
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, err)
	}
	if err := flock(l.f, unix.LOCK_UN); err != nil {
		errs = append(errs, fmt.Errorf("unlock: %w", err))
	}
	if err := l.f.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how) //nolint:gosec // G115: file descriptors fit in int.
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

func sameFile(f *os.File, path string) (bool, error) {
	open, err := f.Stat()
	if err != nil {
		return false, err
	}
	cur, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return os.SameFile(open, cur), nil
}
