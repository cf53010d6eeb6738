//go:build unix

package jsondb

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTryLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movies.json.lock")
	l, err := tryLock(path, time.Minute)
	if err != nil {
		t.Fatalf("tryLock failed: %v", err)
	}
	if _, err := tryLock(path, time.Minute); !errors.Is(err, errLockBusy) {
		t.Errorf("second tryLock error = %v, want %v", err, errLockBusy)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("lock file does not record its holder")
	}
	if err := l.release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("lock file still present after release, stat err = %v", err)
	}
	l, err = tryLock(path, time.Minute)
	if err != nil {
		t.Fatalf("tryLock after release failed: %v", err)
	}
	_ = l.release()
}

func TestCollection_LeftoverLockFile(t *testing.T) {
	// A holder that died leaves its lock file behind but the kernel has dropped
	// its flock.
	path := filepath.Join(t.TempDir(), "movies.json")
	if err := os.WriteFile(path+".lock", []byte("99999 2001-01-01T00:00:00Z\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	c := openTest[movie](t, path, &Options{LockTimeout: time.Second})
	if err := c.Store(t.Context(), []movie{{ID: 1, Title: "A"}}); err != nil {
		t.Fatalf("Store blocked by a leftover lock file: %v", err)
	}
	if got := c.Load(t.Context()); len(got) != 1 {
		t.Errorf("Load = %v, want one record", got)
	}
}

func TestTryLock_ReplacedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movies.json.lock")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if same, err := sameFile(f, path); same || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("sameFile on unlinked file = %v, %v; want false, ErrNotExist", same, err)
	}
}
