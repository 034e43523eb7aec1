package projects

import (
	"context"
	"reflect"
	"testing"

	"waypoint/api/internal/store"
)

func TestDiffPermissionsComputesSetDifference(t *testing.T) {
	source := []store.PermissionHolder{
		{UserID: 1, AccessLevel: "creator"},
		{UserID: 3, AccessLevel: "admin"},
		{UserID: 4, AccessLevel: "viewer"},
	}
	target := []store.PermissionHolder{
		{UserID: 2, AccessLevel: "creator"},
		{UserID: 3, AccessLevel: "viewer"},
		{UserID: 5, AccessLevel: "collaborator"},
	}

	result, upserts, removals := diffPermissions(source, target)

	if !reflect.DeepEqual(result.Added, []int64{1, 4}) {
		t.Fatalf("added = %v, want [1 4]", result.Added)
	}
	if !reflect.DeepEqual(result.Modified, []int64{3}) {
		t.Fatalf("modified = %v, want [3]", result.Modified)
	}
	if !reflect.DeepEqual(result.Removed, []int64{5}) {
		t.Fatalf("removed = %v, want [5]", result.Removed)
	}
	if !reflect.DeepEqual(removals, []int64{5}) {
		t.Fatalf("removals = %v, want [5]", removals)
	}

	levels := make(map[int64]string, len(upserts))
	for _, perm := range upserts {
		levels[perm.UserID] = perm.AccessLevel
	}
	// The source creator lands as admin; the target keeps its own creator.
	if levels[1] != "admin" {
		t.Fatalf("source creator imported as %q, want admin", levels[1])
	}
	if levels[3] != "admin" {
		t.Fatalf("modified level = %q, want admin", levels[3])
	}
}

func TestDiffPermissionsExemptsTargetCreator(t *testing.T) {
	source := []store.PermissionHolder{
		{UserID: 1, AccessLevel: "creator"},
		{UserID: 2, AccessLevel: "viewer"},
	}
	target := []store.PermissionHolder{
		{UserID: 2, AccessLevel: "creator"},
	}

	result, upserts, removals := diffPermissions(source, target)

	for _, perm := range upserts {
		if perm.UserID == 2 {
			t.Fatal("target creator appeared in upserts")
		}
	}
	for _, userID := range removals {
		if userID == 2 {
			t.Fatal("target creator appeared in removals")
		}
	}
	if !reflect.DeepEqual(result.Added, []int64{1}) {
		t.Fatalf("added = %v, want [1]", result.Added)
	}
}

func TestImportPermissionsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, data, _, _ := newTestManager("ada", "grace", "edsger", "barbara")

	source, err := m.Create(ctx, 1, "source", "", "body")
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	target, err := m.Create(ctx, 1, "target", "", "body")
	if err != nil {
		t.Fatalf("create target: %v", err)
	}
	if _, _, err := m.BulkGrant(ctx, 1, source.ID, []int64{2, 3}, "collaborator"); err != nil {
		t.Fatalf("grant on source: %v", err)
	}
	if _, _, err := m.BulkGrant(ctx, 1, target.ID, []int64{4}, "viewer"); err != nil {
		t.Fatalf("grant on target: %v", err)
	}

	result, err := m.ImportPermissions(ctx, 1, source.ID, target.ID)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(result.Added) != 2 || len(result.Removed) != 1 {
		t.Fatalf("first import = %+v", result)
	}
	if data.perms[target.ID][2] != "collaborator" || data.perms[target.ID][3] != "collaborator" {
		t.Fatal("imported levels not applied")
	}
	if _, ok := data.perms[target.ID][4]; ok {
		t.Fatal("holder missing from source survived the import")
	}
	if data.perms[target.ID][1] != "creator" {
		t.Fatal("target creator row was touched")
	}

	again, err := m.ImportPermissions(ctx, 1, source.ID, target.ID)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if len(again.Added)+len(again.Modified)+len(again.Removed) != 0 {
		t.Fatalf("second import not empty: %+v", again)
	}
}

func TestImportPermissionsNeedsNoSourceStanding(t *testing.T) {
	ctx := context.Background()
	m, data, _, _ := newTestManager("ada", "grace")

	source, err := m.Create(ctx, 1, "source", "", "body")
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	target, err := m.Create(ctx, 1, "target", "", "body")
	if err != nil {
		t.Fatalf("create target: %v", err)
	}
	if _, _, err := m.BulkGrant(ctx, 1, target.ID, []int64{2}, "admin"); err != nil {
		t.Fatalf("grant on target: %v", err)
	}

	// Admin on the target is the only gate; user 2 holds nothing on the
	// source. The computed difference removes their own admin row.
	result, err := m.ImportPermissions(ctx, 2, source.ID, target.ID)
	if err != nil {
		t.Fatalf("import without source standing: %v", err)
	}
	if !reflect.DeepEqual(result.Removed, []int64{2}) {
		t.Fatalf("removed = %v, want [2]", result.Removed)
	}
	if _, ok := data.perms[target.ID][2]; ok {
		t.Fatal("admin row missing from source survived the import")
	}
	if data.perms[target.ID][1] != "creator" {
		t.Fatal("target creator row was touched")
	}
}

func TestImportPermissionsRequiresTargetAdmin(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := newTestManager("ada", "grace")

	source, err := m.Create(ctx, 1, "source", "", "body")
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	target, err := m.Create(ctx, 1, "target", "", "body")
	if err != nil {
		t.Fatalf("create target: %v", err)
	}
	if _, _, err := m.BulkGrant(ctx, 1, source.ID, []int64{2}, "admin"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	// Admin on the source only; no standing on the target.
	_, err = m.ImportPermissions(ctx, 2, source.ID, target.ID)
	assertCode(t, err, "FORBIDDEN")
}
