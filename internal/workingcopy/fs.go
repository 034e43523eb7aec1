package workingcopy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// Filesystem keeps one file per project under dir.
type Filesystem struct {
	dir string
}

func NewFilesystem(dir string) (*Filesystem, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create working copy dir: %w", err)
	}
	return &Filesystem{dir: dir}, nil
}

func (f *Filesystem) Write(_ context.Context, projectID int64, body string) error {
	if err := os.WriteFile(f.path(projectID), []byte(body), 0o644); err != nil {
		return fmt.Errorf("write working copy %d: %w", projectID, err)
	}
	return nil
}

func (f *Filesystem) Read(_ context.Context, projectID int64) (string, error) {
	body, err := os.ReadFile(f.path(projectID))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read working copy %d: %w", projectID, err)
	}
	return string(body), nil
}

func (f *Filesystem) Delete(_ context.Context, projectID int64) error {
	err := os.Remove(f.path(projectID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete working copy %d: %w", projectID, err)
	}
	return nil
}

func (f *Filesystem) path(projectID int64) string {
	return filepath.Join(f.dir, strconv.FormatInt(projectID, 10)+".ftml")
}
