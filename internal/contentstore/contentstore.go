// Package contentstore hides how change content is encoded at rest. The
// change log only ever sees opaque refs, so the snapshot, diff and git
// backends are interchangeable.
package contentstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"waypoint/api/internal/store"
)

// ErrNotFound is returned when a ref does not resolve to stored content.
var ErrNotFound = errors.New("content ref not found")

// Store persists one content body per call and reconstructs it later from
// the returned ref. Reconstruction must return the exact original bytes for
// any ref ever issued, not just the most recent one. Destroy discards every
// body the project ever stored; its refs stop resolving.
type Store interface {
	Store(ctx context.Context, projectID int64, body string) (string, error)
	Load(ctx context.Context, projectID int64, ref string) (string, error)
	Destroy(ctx context.Context, projectID int64) error
}

// blobStore is the row-level persistence the snapshot and diff backends
// share. The postgres implementation lives below; tests use an in-memory
// one.
type blobStore interface {
	Insert(ctx context.Context, blob store.Blob) error
	Get(ctx context.Context, projectID int64, ref string) (store.Blob, error)
	Latest(ctx context.Context, projectID int64) (*store.Blob, error)
}

type pgBlobs struct {
	db *sql.DB
}

func (b *pgBlobs) Insert(ctx context.Context, blob store.Blob) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO change_blobs (ref, project_id, kind, parent_ref, body)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
	`, blob.Ref, blob.ProjectID, blob.Kind, blob.ParentRef, blob.Body)
	if err != nil {
		return fmt.Errorf("insert change blob: %w", err)
	}
	return nil
}

func (b *pgBlobs) Get(ctx context.Context, projectID int64, ref string) (store.Blob, error) {
	var blob store.Blob
	err := b.db.QueryRowContext(ctx, `
		SELECT ref, project_id, kind, COALESCE(parent_ref, ''), body, created_at
		FROM change_blobs
		WHERE ref=$1 AND project_id=$2
	`, ref, projectID).Scan(&blob.Ref, &blob.ProjectID, &blob.Kind, &blob.ParentRef, &blob.Body, &blob.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Blob{}, ErrNotFound
	}
	if err != nil {
		return store.Blob{}, fmt.Errorf("read change blob: %w", err)
	}
	return blob, nil
}

func (b *pgBlobs) Latest(ctx context.Context, projectID int64) (*store.Blob, error) {
	var blob store.Blob
	err := b.db.QueryRowContext(ctx, `
		SELECT ref, project_id, kind, COALESCE(parent_ref, ''), body, created_at
		FROM change_blobs
		WHERE project_id=$1
		ORDER BY seq DESC
		LIMIT 1
	`, projectID).Scan(&blob.Ref, &blob.ProjectID, &blob.Kind, &blob.ParentRef, &blob.Body, &blob.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest change blob: %w", err)
	}
	return &blob, nil
}
