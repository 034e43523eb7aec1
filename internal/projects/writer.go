package projects

import (
	"context"
	"fmt"

	"waypoint/api/internal/store"
)

// appendChange writes new content in the durable order: content body first,
// change row second, working-copy mirror last. Once the change row exists the
// save is permanent; a mirror failure surfaces as an error but the mirror is
// rebuilt from the change log on the next read or resync.
func (m *Manager) appendChange(ctx context.Context, projectID, userID int64, body string) (store.Change, error) {
	ref, err := m.content.Store(ctx, projectID, body)
	if err != nil {
		return store.Change{}, fmt.Errorf("store content: %w", err)
	}
	change, err := m.store.InsertChange(ctx, projectID, userID, ref)
	if err != nil {
		return store.Change{}, err
	}
	if err := m.mirror.Write(ctx, projectID, body); err != nil {
		return store.Change{}, fmt.Errorf("mirror working copy: %w", err)
	}
	return change, nil
}
