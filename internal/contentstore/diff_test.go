package contentstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"

	"waypoint/api/internal/store"
)

type memBlobs struct {
	rows []store.Blob
}

func (m *memBlobs) Insert(_ context.Context, blob store.Blob) error {
	m.rows = append(m.rows, blob)
	return nil
}

func (m *memBlobs) Get(_ context.Context, projectID int64, ref string) (store.Blob, error) {
	for _, row := range m.rows {
		if row.ProjectID == projectID && row.Ref == ref {
			return row, nil
		}
	}
	return store.Blob{}, ErrNotFound
}

func (m *memBlobs) Latest(_ context.Context, projectID int64) (*store.Blob, error) {
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].ProjectID == projectID {
			row := m.rows[i]
			return &row, nil
		}
	}
	return nil, nil
}

func newMemDiff() (*Diff, *memBlobs) {
	blobs := &memBlobs{}
	return &Diff{blobs: blobs, dmp: diffmatchpatch.New()}, blobs
}

func TestDiffRoundTripsEveryRef(t *testing.T) {
	ctx := context.Background()
	diff, _ := newMemDiff()

	bodies := make([]string, 0, 25)
	refs := make([]string, 0, 25)
	body := "<ftml><waypoint lat=\"0\" lon=\"0\"/></ftml>"
	for i := 0; i < 25; i++ {
		body = fmt.Sprintf("%s<waypoint lat=\"%d\" lon=\"%d\"/>", body, i, i*2)
		ref, err := diff.Store(ctx, 7, body)
		if err != nil {
			t.Fatalf("store change %d: %v", i, err)
		}
		bodies = append(bodies, body)
		refs = append(refs, ref)
	}

	for i, ref := range refs {
		got, err := diff.Load(ctx, 7, ref)
		if err != nil {
			t.Fatalf("load change %d: %v", i, err)
		}
		if got != bodies[i] {
			t.Fatalf("change %d: reconstructed body does not match original", i)
		}
	}
}

func TestDiffWritesPeriodicSnapshots(t *testing.T) {
	ctx := context.Background()
	diff, blobs := newMemDiff()

	for i := 0; i < snapshotInterval+2; i++ {
		body := fmt.Sprintf("content revision %d", i)
		if _, err := diff.Store(ctx, 3, body); err != nil {
			t.Fatalf("store change %d: %v", i, err)
		}
	}

	if got := blobs.rows[0].Kind; got != "full" {
		t.Fatalf("first blob kind = %q, want full", got)
	}
	for i := 1; i < snapshotInterval; i++ {
		if got := blobs.rows[i].Kind; got != "patch" {
			t.Fatalf("blob %d kind = %q, want patch", i, got)
		}
	}
	if got := blobs.rows[snapshotInterval].Kind; got != "full" {
		t.Fatalf("blob %d kind = %q, want full snapshot", snapshotInterval, got)
	}
	if got := blobs.rows[snapshotInterval+1].Kind; got != "patch" {
		t.Fatalf("blob %d kind = %q, want patch after snapshot", snapshotInterval+1, got)
	}
}

func TestDiffIsolatesProjects(t *testing.T) {
	ctx := context.Background()
	diff, _ := newMemDiff()

	ref, err := diff.Store(ctx, 1, "project one content")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := diff.Load(ctx, 2, ref); err != ErrNotFound {
		t.Fatalf("load with wrong project = %v, want ErrNotFound", err)
	}
}

func TestDiffUnknownRef(t *testing.T) {
	diff, _ := newMemDiff()
	if _, err := diff.Load(context.Background(), 1, "blob_missing"); err != ErrNotFound {
		t.Fatalf("load unknown ref = %v, want ErrNotFound", err)
	}
}
