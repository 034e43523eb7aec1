package contentstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const trackFile = "track.ftml"

// Git keeps one repository per project under baseDir and stores every change
// as a commit of the track file. The issued ref is the commit hash, so any
// historical body is a direct object read.
type Git struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[int64]*sync.Mutex
}

func NewGit(baseDir string) *Git {
	return &Git{
		baseDir: baseDir,
		locks:   make(map[int64]*sync.Mutex),
	}
}

func (g *Git) Store(_ context.Context, projectID int64, body string) (string, error) {
	lock := g.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	path := g.repoPath(projectID)
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = g.initRepo(path)
	}
	if err != nil {
		return "", fmt.Errorf("open project repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, trackFile), []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write track file: %w", err)
	}
	if _, err := worktree.Add(trackFile); err != nil {
		return "", fmt.Errorf("stage track file: %w", err)
	}
	hash, err := worktree.Commit("Save project content", &git.CommitOptions{
		// Reverts re-commit an earlier body unchanged, which is an empty
		// commit as far as git is concerned.
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  "waypoint",
			Email: "store@waypoint.local",
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("commit content: %w", err)
	}
	return hash.String(), nil
}

func (g *Git) Load(_ context.Context, projectID int64, ref string) (string, error) {
	lock := g.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(g.repoPath(projectID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("open project repo: %w", err)
	}

	commit, err := repo.CommitObject(plumbing.NewHash(ref))
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read commit %s: %w", ref, err)
	}
	file, err := commit.File(trackFile)
	if err != nil {
		return "", fmt.Errorf("read track file at %s: %w", ref, err)
	}
	body, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read track contents at %s: %w", ref, err)
	}
	return body, nil
}

// Destroy removes the project's repository from disk, history included.
func (g *Git) Destroy(_ context.Context, projectID int64) error {
	lock := g.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(g.repoPath(projectID)); err != nil {
		return fmt.Errorf("remove project repo: %w", err)
	}
	g.lockMu.Lock()
	delete(g.locks, projectID)
	g.lockMu.Unlock()
	return nil
}

func (g *Git) initRepo(path string) (*git.Repository, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func (g *Git) repoPath(projectID int64) string {
	return filepath.Join(g.baseDir, strconv.FormatInt(projectID, 10))
}

func (g *Git) projectLock(projectID int64) *sync.Mutex {
	g.lockMu.Lock()
	defer g.lockMu.Unlock()
	lock, ok := g.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[projectID] = lock
	}
	return lock
}
