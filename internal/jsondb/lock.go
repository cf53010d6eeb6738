// Polls for the cross-process write lock.

package jsondb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

var (
	// errLockBusy means another holder owns the lock right now.
	errLockBusy = errors.New("lock busy")
	// errLockReplaced means the lock file changed under us; retry immediately.
	errLockReplaced = errors.New("lock file replaced")
)

// acquireLock takes the lock at path, polling every poll until ctx is done.
func acquireLock(ctx context.Context, path string, poll, staleAfter time.Duration) (*fileLock, error) {
	for {
		l, err := tryLock(path, staleAfter)
		switch {
		case err == nil:
			return l, nil
		case errors.Is(err, errLockReplaced):
			continue
		case !errors.Is(err, errLockBusy):
			return nil, err
		}
		t := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// holderInfo is written into the lock file to help diagnose who holds it.
func holderInfo() []byte {
	return []byte(strconv.Itoa(os.Getpid()) + " " + time.Now().UTC().Format(time.RFC3339) + "\n")
}

func wrapLockErr(path string, err error) error {
	return fmt.Errorf("failed to lock %s: %w", path, err)
}
