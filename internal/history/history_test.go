package history

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRepo(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()
	r, err := Open(dir, Author{Name: "moviedb", Email: "moviedb@localhost"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	path := filepath.Join(dir, "movies.json")

	if got, err := r.Log(ctx, path, 10); err != nil || len(got) != 0 {
		t.Fatalf("Log on empty repo = %v, %v", got, err)
	}

	write := func(s string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("[]\n")
	if err := r.Commit(ctx, Author{Name: "alice", Email: "alice@localhost"}, "Create list", path); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	// Unrelated untracked files don't produce empty commits.
	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.Commit(ctx, Author{}, "No change", path); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	write(`[{"id": 1}]` + "\n")
	if err := r.Commit(ctx, Author{}, "Add movie\n\nbody", "movies.json"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	log, err := r.Log(ctx, path, 10)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("got %d commits, want 2: %+v", len(log), log)
	}
	if log[0].Message != "Add movie" || log[0].Author != "moviedb" {
		t.Errorf("newest commit = %+v", log[0])
	}
	if log[1].Message != "Create list" || log[1].Author != "alice" {
		t.Errorf("oldest commit = %+v", log[1])
	}
	if got, err := r.Log(ctx, path, 1); err != nil || len(got) != 1 {
		t.Errorf("Log(n=1) = %v, %v", got, err)
	}

	b, err := r.FileAt(ctx, log[1].Hash, path)
	if err != nil {
		t.Fatalf("FileAt failed: %v", err)
	}
	if string(b) != "[]\n" {
		t.Errorf("got %q, want %q", b, "[]\n")
	}

	if _, err := r.Log(ctx, filepath.Join(filepath.Dir(dir), "x"), 1); err == nil {
		t.Error("Log outside the repository succeeded")
	}

	// Reopening keeps the history.
	r2, err := Open(dir, Author{Name: "moviedb"})
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := r2.Log(ctx, path, 10); len(got) != 2 {
		t.Errorf("reopened repo has %d commits", len(got))
	}
}
