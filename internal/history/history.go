// Package history records successive versions of the data documents in a git
// repository living in the data directory.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ignored lists the store's transient files.
const ignored = "*.lock\n*.tmp\n*.bak\n.env\nserver_config.json\nusers.json\n"

// Author identifies who made a change.
type Author struct {
	Name  string
	Email string
}

// Commit is one entry of a file's history.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
}

// Repo is a git repository rooted at the data directory.
type Repo struct {
	dir       string
	committer Author
	repo      *gogit.Repository
	mu        sync.Mutex
	now       func() time.Time
}

// Open opens the repository in dir, initializing it when needed.
func Open(dir string, committer Author) (*Repo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		if !errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("failed to open git repo: %w", err)
		}
		if repo, err = gogit.PlainInit(dir, false); err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
	}
	gi := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gi); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(gi, []byte(ignored), 0o644); err != nil { //nolint:gosec // G306: not a secret
			return nil, fmt.Errorf("failed to write .gitignore: %w", err)
		}
	}
	return &Repo{dir: dir, committer: committer, repo: repo, now: time.Now}, nil
}

// Commit stages files and commits them. Files are absolute or relative to the
// repository root. Nothing is committed when none of them changed.
func (r *Repo) Commit(_ context.Context, author Author, msg string, files ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	var rels []string
	for _, f := range files {
		rel, err := r.rel(f)
		if err != nil {
			return err
		}
		if _, err := w.Add(rel); err != nil {
			return fmt.Errorf("failed to stage %s: %w", rel, err)
		}
		rels = append(rels, rel)
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	changed := false
	for _, rel := range rels {
		if s, ok := status[rel]; ok && s.Staging != gogit.Unmodified && s.Staging != gogit.Untracked {
			changed = true
		}
	}
	if !changed {
		return nil
	}

	if author.Name == "" {
		author = r.committer
	}
	now := r.now()
	_, err = w.Commit(msg, &gogit.CommitOptions{
		Author:    &object.Signature{Name: author.Name, Email: author.Email, When: now},
		Committer: &object.Signature{Name: r.committer.Name, Email: r.committer.Email, When: now},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Log returns up to n commits touching path, most recent first.
func (r *Repo) Log(_ context.Context, path string, n int) ([]Commit, error) {
	if n <= 0 || n > 1000 {
		n = 1000
	}
	rel, err := r.rel(path)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	iter, err := r.repo.Log(&gogit.LogOptions{FileName: &rel})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// No commits yet.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	var out []Commit
	for range n {
		c, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read log: %w", err)
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		out = append(out, Commit{
			Hash:    c.Hash.String(),
			Message: subject,
			Author:  c.Author.Name,
			Date:    c.Author.When,
		})
	}
	return out, nil
}

// FileAt returns the content of path at the commit hash.
func (r *Repo) FileAt(_ context.Context, hash, path string) ([]byte, error) {
	rel, err := r.rel(path)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	f, err := c.File(rel)
	if err != nil {
		return nil, fmt.Errorf("failed to get file at commit: %w", err)
	}
	s, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read file at commit: %w", err)
	}
	return []byte(s), nil
}

func (r *Repo) rel(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(path), nil
	}
	rel, err := filepath.Rel(r.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside %s", path, r.dir)
	}
	return filepath.ToSlash(rel), nil
}
