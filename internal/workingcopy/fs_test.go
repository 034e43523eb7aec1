package workingcopy

import (
	"context"
	"testing"
)

func TestFilesystemRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}

	if err := fs.Write(ctx, 1, "alpha"); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := fs.Read(ctx, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "alpha" {
		t.Fatalf("read = %q, want alpha", got)
	}

	if err := fs.Write(ctx, 1, "beta"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = fs.Read(ctx, 1)
	if err != nil {
		t.Fatalf("read after overwrite: %v", err)
	}
	if got != "beta" {
		t.Fatalf("read after overwrite = %q, want beta", got)
	}
}

func TestFilesystemMissingProject(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	if _, err := fs.Read(context.Background(), 99); err != ErrNotFound {
		t.Fatalf("read missing = %v, want ErrNotFound", err)
	}
}

func TestFilesystemDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}

	if err := fs.Write(ctx, 5, "body"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := fs.Delete(ctx, 5); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := fs.Delete(ctx, 5); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := fs.Read(ctx, 5); err != ErrNotFound {
		t.Fatalf("read deleted = %v, want ErrNotFound", err)
	}
}
