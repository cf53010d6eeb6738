//go:build !unix

package jsondb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

// fileLock is an exclusively created marker file. Its mtime is refreshed while
// held; a marker whose mtime is older than staleAfter belongs to a dead holder
// and is removed by the next waiter.
type fileLock struct {
	f    *os.File
	path string
	stop chan struct{}
	wg   sync.WaitGroup
}

func tryLock(path string, staleAfter time.Duration) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // G304: path is derived from the collection path.
	if err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return nil, wrapLockErr(path, err)
		}
		fi, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, errLockReplaced
			}
			return nil, wrapLockErr(path, err)
		}
		if time.Since(fi.ModTime()) > staleAfter {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, wrapLockErr(path, err)
			}
			return nil, errLockReplaced
		}
		return nil, errLockBusy
	}
	_, _ = f.Write(holderInfo())
	l := &fileLock{f: f, path: path, stop: make(chan struct{})}
	l.wg.Add(1)
	go l.heartbeat(max(staleAfter/3, 10*time.Millisecond))
	return l, nil
}

func (l *fileLock) heartbeat(every time.Duration) {
	defer l.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-t.C:
			_ = os.Chtimes(l.path, now, now)
		}
	}
}

func (l *fileLock) release() error {
	close(l.stop)
	l.wg.Wait()
	var errs []error
	if err := l.f.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove lock: %w", err))
	}
	return errors.Join(errs...)
}
