package projects

import (
	"context"
	"log"
	"sort"

	"waypoint/api/internal/access"
	"waypoint/api/internal/store"
)

// ImportResult reports what an import changed on the target, as sorted user
// ids. A repeated import of the same source yields three empty lists.
type ImportResult struct {
	Added    []int64 `json:"added"`
	Modified []int64 `json:"modified"`
	Removed  []int64 `json:"removed"`
}

// ImportPermissions replaces the target project's permission set with the
// source project's. The caller must administer the target; no standing on
// the source is needed. The target's creator row is exempt: it is never
// modified or removed, and the source creator arrives as an admin. The whole
// difference is applied atomically.
func (m *Manager) ImportPermissions(ctx context.Context, userID, sourceID, targetID int64) (ImportResult, error) {
	if _, err := m.requireLevel(ctx, targetID, userID, access.Admin); err != nil {
		return ImportResult{}, err
	}
	if _, err := m.getProject(ctx, targetID); err != nil {
		return ImportResult{}, err
	}
	if _, err := m.getProject(ctx, sourceID); err != nil {
		return ImportResult{}, err
	}

	sourceHolders, err := m.store.ListHolders(ctx, sourceID)
	if err != nil {
		return ImportResult{}, err
	}
	targetHolders, err := m.store.ListHolders(ctx, targetID)
	if err != nil {
		return ImportResult{}, err
	}

	result, upserts, removals := diffPermissions(sourceHolders, targetHolders)
	if err := m.store.ApplyPermissionImport(ctx, targetID, upserts, removals); err != nil {
		return ImportResult{}, err
	}

	if m.invalidate != nil {
		if err := m.invalidate.InvalidateProject(ctx, targetID); err != nil {
			log.Printf("invalidate project %d after import: %v", targetID, err)
		}
	}
	return result, nil
}

// diffPermissions computes the minimal set of upserts and removals that turn
// the target's permission set into the source's. The target creator is
// skipped entirely; a source creator maps to admin so the target keeps
// exactly one creator.
func diffPermissions(source, target []store.PermissionHolder) (ImportResult, []store.Permission, []int64) {
	wanted := make(map[int64]access.Level, len(source))
	for _, holder := range source {
		level := access.Level(holder.AccessLevel)
		if level == access.Creator {
			level = access.Admin
		}
		wanted[holder.UserID] = level
	}

	current := make(map[int64]access.Level, len(target))
	var creatorID int64
	for _, holder := range target {
		level := access.Level(holder.AccessLevel)
		if level == access.Creator {
			creatorID = holder.UserID
			continue
		}
		current[holder.UserID] = level
	}
	delete(wanted, creatorID)

	var result ImportResult
	var upserts []store.Permission
	var removals []int64

	for userID, level := range wanted {
		have, ok := current[userID]
		switch {
		case !ok:
			result.Added = append(result.Added, userID)
		case have != level:
			result.Modified = append(result.Modified, userID)
		default:
			continue
		}
		upserts = append(upserts, store.Permission{UserID: userID, AccessLevel: string(level)})
	}
	for userID := range current {
		if _, ok := wanted[userID]; !ok {
			result.Removed = append(result.Removed, userID)
			removals = append(removals, userID)
		}
	}

	sort.Slice(result.Added, func(i, j int) bool { return result.Added[i] < result.Added[j] })
	sort.Slice(result.Modified, func(i, j int) bool { return result.Modified[i] < result.Modified[j] })
	sort.Slice(result.Removed, func(i, j int) bool { return result.Removed[i] < result.Removed[j] })
	sort.Slice(upserts, func(i, j int) bool { return upserts[i].UserID < upserts[j].UserID })
	sort.Slice(removals, func(i, j int) bool { return removals[i] < removals[j] })

	return result, upserts, removals
}
