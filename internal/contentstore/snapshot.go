package contentstore

import (
	"context"
	"database/sql"

	"waypoint/api/internal/store"
	"waypoint/api/internal/util"
)

// Snapshot stores every change as a complete content body. Simple and
// reconstruction is a single row read; storage grows with every save.
type Snapshot struct {
	blobs blobStore
}

func NewSnapshot(db *sql.DB) *Snapshot {
	return &Snapshot{blobs: &pgBlobs{db: db}}
}

func (s *Snapshot) Store(ctx context.Context, projectID int64, body string) (string, error) {
	ref := util.NewRef("blob")
	if err := s.blobs.Insert(ctx, store.Blob{
		Ref:       ref,
		ProjectID: projectID,
		Kind:      "full",
		Body:      body,
	}); err != nil {
		return "", err
	}
	return ref, nil
}

func (s *Snapshot) Load(ctx context.Context, projectID int64, ref string) (string, error) {
	blob, err := s.blobs.Get(ctx, projectID, ref)
	if err != nil {
		return "", err
	}
	return blob.Body, nil
}

// Destroy is a no-op: snapshot bodies live in change_blobs, which the
// project delete removes in the same transaction.
func (s *Snapshot) Destroy(context.Context, int64) error {
	return nil
}
