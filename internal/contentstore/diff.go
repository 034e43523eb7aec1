package contentstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"

	"waypoint/api/internal/store"
	"waypoint/api/internal/util"
)

// snapshotInterval bounds patch-chain length: after this many patches a full
// snapshot is written, so reconstruction replays at most this many deltas.
const snapshotInterval = 10

// Diff stores a change as a patch against the previous body, with periodic
// full snapshots. Reconstruction replays the patch chain from the nearest
// preceding snapshot, so interior refs resolve exactly like the head.
type Diff struct {
	blobs blobStore
	dmp   *diffmatchpatch.DiffMatchPatch
}

func NewDiff(db *sql.DB) *Diff {
	return &Diff{blobs: &pgBlobs{db: db}, dmp: diffmatchpatch.New()}
}

func (d *Diff) Store(ctx context.Context, projectID int64, body string) (string, error) {
	ref := util.NewRef("blob")

	latest, err := d.blobs.Latest(ctx, projectID)
	if err != nil {
		return "", err
	}

	blob := store.Blob{Ref: ref, ProjectID: projectID, Kind: "full", Body: body}
	if latest != nil {
		depth, err := d.chainDepth(ctx, projectID, latest)
		if err != nil {
			return "", err
		}
		if depth+1 < snapshotInterval {
			previous, err := d.Load(ctx, projectID, latest.Ref)
			if err != nil {
				return "", err
			}
			patches := d.dmp.PatchMake(previous, body)
			blob.Kind = "patch"
			blob.ParentRef = latest.Ref
			blob.Body = d.dmp.PatchToText(patches)
		}
	}

	if err := d.blobs.Insert(ctx, blob); err != nil {
		return "", err
	}
	return ref, nil
}

func (d *Diff) Load(ctx context.Context, projectID int64, ref string) (string, error) {
	blob, err := d.blobs.Get(ctx, projectID, ref)
	if err != nil {
		return "", err
	}
	if blob.Kind == "full" {
		return blob.Body, nil
	}

	previous, err := d.Load(ctx, projectID, blob.ParentRef)
	if err != nil {
		return "", err
	}
	patches, err := d.dmp.PatchFromText(blob.Body)
	if err != nil {
		return "", fmt.Errorf("decode patch %s: %w", ref, err)
	}
	body, applied := d.dmp.PatchApply(patches, previous)
	for _, ok := range applied {
		if !ok {
			return "", fmt.Errorf("apply patch %s: hunk did not apply", ref)
		}
	}
	return body, nil
}

// Destroy is a no-op: patch and snapshot rows live in change_blobs, which
// the project delete removes in the same transaction.
func (d *Diff) Destroy(context.Context, int64) error {
	return nil
}

// chainDepth counts patches between latest and its nearest full snapshot.
func (d *Diff) chainDepth(ctx context.Context, projectID int64, latest *store.Blob) (int, error) {
	depth := 0
	current := latest
	for current.Kind == "patch" {
		depth++
		if depth > snapshotInterval {
			// A chain longer than the interval means a corrupted parent link.
			return 0, fmt.Errorf("patch chain exceeds snapshot interval at %s", current.Ref)
		}
		parent, err := d.blobs.Get(ctx, projectID, current.ParentRef)
		if err != nil {
			return 0, err
		}
		current = &parent
	}
	return depth, nil
}
