// Package workingcopy mirrors each project's latest content to a fast read
// path. The mirror is derived state: it can always be rebuilt from the change
// log, so writers treat it as best-effort and repair it on read.
package workingcopy

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a project has no mirrored content.
var ErrNotFound = errors.New("working copy not found")

type Store interface {
	Write(ctx context.Context, projectID int64, body string) error
	Read(ctx context.Context, projectID int64) (string, error)
	Delete(ctx context.Context, projectID int64) error
}
