package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"waypoint/api/internal/access"
	"waypoint/api/internal/contentstore"
	"waypoint/api/internal/store"
	"waypoint/api/internal/workingcopy"
)

// defaultContent seeds a project created without an initial body.
const defaultContent = `<?xml version="1.0" encoding="utf-8"?>
<FlightTrack version="9.1.0">
  <ListOfWaypoints>
    <Waypoint flightlevel="250.0" lat="67.821" location="Nordkapp" lon="24.827">
      <Comments></Comments>
    </Waypoint>
    <Waypoint flightlevel="250.0" lat="52.328" location="Hamburg" lon="10.448">
      <Comments></Comments>
    </Waypoint>
  </ListOfWaypoints>
</FlightTrack>
`

type dataStore interface {
	GetUserByID(ctx context.Context, userID int64) (store.User, error)
	GetProject(ctx context.Context, projectID int64) (store.Project, error)
	ProjectPathExists(ctx context.Context, path string) (bool, error)
	CreateProject(ctx context.Context, path, description string, creatorID int64) (store.Project, error)
	DeleteProject(ctx context.Context, projectID int64) error
	RenameProject(ctx context.Context, projectID int64, path string) error
	UpdateProjectDescription(ctx context.Context, projectID int64, description string) error
	ListProjectsFor(ctx context.Context, userID int64) ([]store.ProjectAccess, error)
	LevelOf(ctx context.Context, projectID, userID int64) (string, error)
	Grant(ctx context.Context, projectID, userID int64, level string) error
	Revoke(ctx context.Context, projectID, userID int64) error
	ListHolders(ctx context.Context, projectID int64) ([]store.PermissionHolder, error)
	ListNonHolders(ctx context.Context, projectID, excludeUserID int64) ([]store.User, error)
	BulkGrant(ctx context.Context, projectID int64, userIDs []int64, level string) error
	ApplyPermissionImport(ctx context.Context, targetID int64, upserts []store.Permission, removeUserIDs []int64) error
	InsertChange(ctx context.Context, projectID, userID int64, contentRef string) (store.Change, error)
	LatestChange(ctx context.Context, projectID int64) (*store.Change, error)
	ListChanges(ctx context.Context, projectID int64, onlyNamed bool) ([]store.Change, error)
	GetChange(ctx context.Context, changeID int64) (store.Change, error)
	SetVersionName(ctx context.Context, changeID, projectID int64, name string) (bool, error)
}

// LevelSource answers access-level lookups. The postgres store implements it
// directly; the redis cache wraps it with the same contract.
type LevelSource interface {
	LevelOf(ctx context.Context, projectID, userID int64) (string, error)
}

// Invalidator drops cached levels after a permission write.
type Invalidator interface {
	InvalidateUser(ctx context.Context, projectID, userID int64) error
	InvalidateProject(ctx context.Context, projectID int64) error
}

// Indexer keeps the project search index in step with the store, best-effort.
type Indexer interface {
	IndexProject(ctx context.Context, project store.Project)
	RemoveProject(ctx context.Context, projectID int64)
}

// Searcher resolves a text query to candidate project ids. Access filtering
// happens here, not in the search backend.
type Searcher interface {
	SearchProjectIDs(ctx context.Context, text string, limit int) ([]int64, error)
}

// Manager owns every project operation: lifecycle, permissions, the change
// log and the working-copy mirror. All access decisions happen here; the
// stores below it never check permissions.
type Manager struct {
	store      dataStore
	content    contentstore.Store
	mirror     workingcopy.Store
	levels     LevelSource
	invalidate Invalidator
	index      Indexer
	search     Searcher

	lockMu sync.Mutex
	locks  map[int64]*sync.Mutex
}

func New(data dataStore, content contentstore.Store, mirror workingcopy.Store) *Manager {
	return &Manager{
		store:   data,
		content: content,
		mirror:  mirror,
		levels:  data,
		locks:   make(map[int64]*sync.Mutex),
	}
}

// UseCache routes level lookups through a cache that is invalidated on
// permission writes.
func (m *Manager) UseCache(levels LevelSource, invalidate Invalidator) {
	m.levels = levels
	m.invalidate = invalidate
}

func (m *Manager) UseIndexer(index Indexer) {
	m.index = index
}

func (m *Manager) UseSearch(search Searcher) {
	m.search = search
}

// Create makes a project with its creator permission and first change. When
// content is empty the default template body is used. A taken path is a
// conflict; deleting the project later frees the path again.
func (m *Manager) Create(ctx context.Context, creatorID int64, path, description, content string) (store.Project, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return store.Project{}, conflictError("project path is required")
	}
	taken, err := m.store.ProjectPathExists(ctx, path)
	if err != nil {
		return store.Project{}, err
	}
	if taken {
		return store.Project{}, conflictError("project path already exists")
	}
	if content == "" {
		content = defaultContent
	}

	project, err := m.store.CreateProject(ctx, path, description, creatorID)
	if err != nil {
		return store.Project{}, err
	}

	// The first change needs the project id, so it cannot join the create
	// transaction. On failure the project is compensated away before the
	// error surfaces.
	if _, err := m.appendChange(ctx, project.ID, creatorID, content); err != nil {
		if cleanupErr := m.store.DeleteProject(ctx, project.ID); cleanupErr != nil {
			log.Printf("create compensation failed for project %d: %v", project.ID, cleanupErr)
		}
		return store.Project{}, fmt.Errorf("seed project content: %w", err)
	}

	if m.index != nil {
		m.index.IndexProject(ctx, project)
	}
	return project, nil
}

// ExistingProject reports whether a live project occupies the path.
func (m *Manager) ExistingProject(ctx context.Context, path string) (bool, error) {
	return m.store.ProjectPathExists(ctx, strings.TrimSpace(path))
}

// Details returns the project with the caller's access level. Viewers and
// above may look.
func (m *Manager) Details(ctx context.Context, userID, projectID int64) (store.ProjectAccess, error) {
	level, err := m.requireLevel(ctx, projectID, userID, access.Viewer)
	if err != nil {
		return store.ProjectAccess{}, err
	}
	project, err := m.getProject(ctx, projectID)
	if err != nil {
		return store.ProjectAccess{}, err
	}
	return store.ProjectAccess{Project: project, AccessLevel: string(level)}, nil
}

// ListFor returns every project the user holds a permission on, oldest
// project first.
func (m *Manager) ListFor(ctx context.Context, userID int64) ([]store.ProjectAccess, error) {
	return m.store.ListProjectsFor(ctx, userID)
}

// SearchProjects returns matching projects the user may view, in rank order.
// Without a search backend it falls back to a substring scan over the user's
// own projects.
func (m *Manager) SearchProjects(ctx context.Context, userID int64, text string, limit int) ([]store.ProjectAccess, error) {
	if limit <= 0 {
		limit = 20
	}
	if m.search == nil {
		items, err := m.store.ListProjectsFor(ctx, userID)
		if err != nil {
			return nil, err
		}
		needle := strings.ToLower(text)
		matched := make([]store.ProjectAccess, 0)
		for _, item := range items {
			if len(matched) == limit {
				break
			}
			if strings.Contains(strings.ToLower(item.Path), needle) ||
				strings.Contains(strings.ToLower(item.Description), needle) {
				matched = append(matched, item)
			}
		}
		return matched, nil
	}

	ids, err := m.search.SearchProjectIDs(ctx, text, limit)
	if err != nil {
		return nil, fmt.Errorf("search projects: %w", err)
	}
	items := make([]store.ProjectAccess, 0, len(ids))
	for _, projectID := range ids {
		level, err := m.levelFor(ctx, projectID, userID)
		if err != nil {
			return nil, err
		}
		if !access.IsAtLeast(level, access.Viewer) {
			continue
		}
		project, err := m.store.GetProject(ctx, projectID)
		if errors.Is(err, sql.ErrNoRows) {
			// The index can lag a deletion.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read project: %w", err)
		}
		items = append(items, store.ProjectAccess{Project: project, AccessLevel: string(level)})
	}
	return items, nil
}

// Update changes a project attribute. Admins and the creator may update;
// renames refuse a path another live project holds.
func (m *Manager) Update(ctx context.Context, userID, projectID int64, attribute, value string) error {
	if _, err := m.requireLevel(ctx, projectID, userID, access.Admin); err != nil {
		return err
	}
	if _, err := m.getProject(ctx, projectID); err != nil {
		return err
	}

	switch attribute {
	case "path":
		value = strings.TrimSpace(value)
		if value == "" {
			return conflictError("project path is required")
		}
		taken, err := m.store.ProjectPathExists(ctx, value)
		if err != nil {
			return err
		}
		if taken {
			return conflictError("project path already exists")
		}
		if err := m.store.RenameProject(ctx, projectID, value); err != nil {
			return err
		}
	case "description":
		if err := m.store.UpdateProjectDescription(ctx, projectID, value); err != nil {
			return err
		}
	default:
		return conflictError("unknown project attribute")
	}

	if m.index != nil {
		if project, err := m.getProject(ctx, projectID); err == nil {
			m.index.IndexProject(ctx, project)
		}
	}
	return nil
}

// Delete removes the project, its history and its working copy. Only the
// creator may delete.
func (m *Manager) Delete(ctx context.Context, userID, projectID int64) error {
	level, err := m.levelFor(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if level != access.Creator {
		return forbiddenError("only the creator can delete a project")
	}
	if _, err := m.getProject(ctx, projectID); err != nil {
		return err
	}

	lock := m.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	if err := m.content.Destroy(ctx, projectID); err != nil {
		log.Printf("destroy content of project %d: %v", projectID, err)
	}
	if err := m.mirror.Delete(ctx, projectID); err != nil {
		log.Printf("delete working copy %d: %v", projectID, err)
	}
	if m.invalidate != nil {
		if err := m.invalidate.InvalidateProject(ctx, projectID); err != nil {
			log.Printf("invalidate project %d: %v", projectID, err)
		}
	}
	if m.index != nil {
		m.index.RemoveProject(ctx, projectID)
	}
	return nil
}

// Save appends new content as a change. Collaborators and above may save.
// Content identical to the head is not a change; Save reports false and the
// history stays untouched.
func (m *Manager) Save(ctx context.Context, userID, projectID int64, content string) (bool, error) {
	if _, err := m.requireLevel(ctx, projectID, userID, access.Collaborator); err != nil {
		return false, err
	}
	if _, err := m.getProject(ctx, projectID); err != nil {
		return false, err
	}

	lock := m.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	head, err := m.store.LatestChange(ctx, projectID)
	if err != nil {
		return false, err
	}
	if head != nil {
		current, err := m.content.Load(ctx, projectID, head.ContentRef)
		if err != nil {
			return false, fmt.Errorf("load head content: %w", err)
		}
		if current == content {
			return false, nil
		}
	}

	if _, err := m.appendChange(ctx, projectID, userID, content); err != nil {
		return false, err
	}
	return true, nil
}

// Read returns the project's current content. Viewers and above may read.
// A missing mirror file is repaired from the change log before returning.
func (m *Manager) Read(ctx context.Context, userID, projectID int64) (string, error) {
	if _, err := m.requireLevel(ctx, projectID, userID, access.Viewer); err != nil {
		return "", err
	}
	if _, err := m.getProject(ctx, projectID); err != nil {
		return "", err
	}

	body, err := m.mirror.Read(ctx, projectID)
	if err == nil {
		return body, nil
	}
	if !errors.Is(err, workingcopy.ErrNotFound) {
		return "", err
	}
	if err := m.ResyncWorkingCopy(ctx, projectID); err != nil {
		return "", err
	}
	return m.mirror.Read(ctx, projectID)
}

// History returns the project's changes in chronological order. With
// onlyNamed set only labeled versions are listed.
func (m *Manager) History(ctx context.Context, userID, projectID int64, onlyNamed bool) ([]store.Change, error) {
	if _, err := m.requireLevel(ctx, projectID, userID, access.Viewer); err != nil {
		return nil, err
	}
	if _, err := m.getProject(ctx, projectID); err != nil {
		return nil, err
	}
	return m.store.ListChanges(ctx, projectID, onlyNamed)
}

// Reconstruct returns the exact content body of one historical change.
func (m *Manager) Reconstruct(ctx context.Context, userID, projectID, changeID int64) (string, error) {
	if _, err := m.requireLevel(ctx, projectID, userID, access.Viewer); err != nil {
		return "", err
	}
	change, err := m.getChange(ctx, projectID, changeID)
	if err != nil {
		return "", err
	}
	body, err := m.content.Load(ctx, projectID, change.ContentRef)
	if errors.Is(err, contentstore.ErrNotFound) {
		return "", notFoundError("change content not found")
	}
	if err != nil {
		return "", err
	}
	return body, nil
}

// LabelVersion names a change so it survives history pruning views. Admins
// and the creator may label.
func (m *Manager) LabelVersion(ctx context.Context, userID, projectID, changeID int64, name string) error {
	if _, err := m.requireLevel(ctx, projectID, userID, access.Admin); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return conflictError("version name is required")
	}
	updated, err := m.store.SetVersionName(ctx, changeID, projectID, name)
	if err != nil {
		return err
	}
	if !updated {
		return notFoundError("change not found")
	}
	return nil
}

// Undo restores the content of an older change by appending it as a new head
// change. History is append-only; nothing is rewritten.
func (m *Manager) Undo(ctx context.Context, userID, projectID, changeID int64) error {
	if _, err := m.requireLevel(ctx, projectID, userID, access.Collaborator); err != nil {
		return err
	}
	change, err := m.getChange(ctx, projectID, changeID)
	if err != nil {
		return err
	}

	lock := m.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	body, err := m.content.Load(ctx, projectID, change.ContentRef)
	if errors.Is(err, contentstore.ErrNotFound) {
		return notFoundError("change content not found")
	}
	if err != nil {
		return err
	}
	if _, err := m.appendChange(ctx, projectID, userID, body); err != nil {
		return err
	}
	return nil
}

// BulkGrant gives the level to every listed user and reports success per
// target. The granter must be an admin or the creator; a level at or above
// the granter's own is refused target by target, not by failing the batch.
// Unknown users, the granter's own row and the creator's row are rejected,
// never touched.
func (m *Manager) BulkGrant(ctx context.Context, granterID, projectID int64, userIDs []int64, level string) (granted, rejected []int64, err error) {
	granterLevel, err := m.requireLevel(ctx, projectID, granterID, access.Admin)
	if err != nil {
		return nil, nil, err
	}
	if _, err := m.getProject(ctx, projectID); err != nil {
		return nil, nil, err
	}
	grantable := access.Grantable(granterLevel, access.Level(level))

	granted = make([]int64, 0, len(userIDs))
	rejected = make([]int64, 0)
	for _, userID := range userIDs {
		if !grantable || userID == granterID {
			rejected = append(rejected, userID)
			continue
		}
		if _, err := m.store.GetUserByID(ctx, userID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				rejected = append(rejected, userID)
				continue
			}
			return nil, nil, err
		}
		existing, err := m.levelFor(ctx, projectID, userID)
		if err != nil {
			return nil, nil, err
		}
		if existing == access.Creator {
			rejected = append(rejected, userID)
			continue
		}
		granted = append(granted, userID)
	}
	if len(granted) == 0 {
		return granted, rejected, nil
	}

	if err := m.store.BulkGrant(ctx, projectID, granted, level); err != nil {
		return nil, nil, err
	}
	m.invalidateUsers(ctx, projectID, granted)
	return granted, rejected, nil
}

// ModifyAccess changes one holder's level. The creator's row is immutable.
func (m *Manager) ModifyAccess(ctx context.Context, granterID, projectID, targetID int64, level string) error {
	granterLevel, err := m.requireLevel(ctx, projectID, granterID, access.Admin)
	if err != nil {
		return err
	}
	targetLevel, err := m.levelFor(ctx, projectID, targetID)
	if err != nil {
		return err
	}
	if targetLevel == "" {
		return notFoundError("user holds no permission on this project")
	}
	if targetLevel == access.Creator {
		return forbiddenError("the creator's access cannot be changed")
	}
	granted := access.Level(level)
	if !access.Grantable(granterLevel, granted) {
		return forbiddenError("cannot grant a level at or above your own")
	}
	if err := m.store.Grant(ctx, projectID, targetID, string(granted)); err != nil {
		return err
	}
	m.invalidateUsers(ctx, projectID, []int64{targetID})
	return nil
}

// RevokeAccess removes one holder's permission. The creator keeps theirs
// until the project is deleted.
func (m *Manager) RevokeAccess(ctx context.Context, granterID, projectID, targetID int64) error {
	if _, err := m.requireLevel(ctx, projectID, granterID, access.Admin); err != nil {
		return err
	}
	targetLevel, err := m.levelFor(ctx, projectID, targetID)
	if err != nil {
		return err
	}
	if targetLevel == "" {
		return notFoundError("user holds no permission on this project")
	}
	if targetLevel == access.Creator {
		return forbiddenError("the creator's access cannot be revoked")
	}
	if err := m.store.Revoke(ctx, projectID, targetID); err != nil {
		return err
	}
	m.invalidateUsers(ctx, projectID, []int64{targetID})
	return nil
}

// EligibleInvitees lists users who hold no permission yet, for invite views.
func (m *Manager) EligibleInvitees(ctx context.Context, userID, projectID int64) ([]store.User, error) {
	if _, err := m.requireLevel(ctx, projectID, userID, access.Admin); err != nil {
		return nil, err
	}
	return m.store.ListNonHolders(ctx, projectID, userID)
}

// CurrentHolders lists permission holders for management views. The creator
// is left out; their row is not manageable.
func (m *Manager) CurrentHolders(ctx context.Context, userID, projectID int64) ([]store.PermissionHolder, error) {
	if _, err := m.requireLevel(ctx, projectID, userID, access.Admin); err != nil {
		return nil, err
	}
	holders, err := m.store.ListHolders(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]store.PermissionHolder, 0, len(holders))
	for _, holder := range holders {
		if access.Level(holder.AccessLevel) == access.Creator {
			continue
		}
		items = append(items, holder)
	}
	return items, nil
}

// ResyncWorkingCopy rewrites the mirror from the change log head. Projects
// without history get their mirror removed. Safe to run repeatedly.
func (m *Manager) ResyncWorkingCopy(ctx context.Context, projectID int64) error {
	head, err := m.store.LatestChange(ctx, projectID)
	if err != nil {
		return err
	}
	if head == nil {
		return m.mirror.Delete(ctx, projectID)
	}
	body, err := m.content.Load(ctx, projectID, head.ContentRef)
	if err != nil {
		return fmt.Errorf("load head content: %w", err)
	}
	if err := m.mirror.Write(ctx, projectID, body); err != nil {
		return fmt.Errorf("rewrite working copy: %w", err)
	}
	return nil
}

func (m *Manager) levelFor(ctx context.Context, projectID, userID int64) (access.Level, error) {
	raw, err := m.levels.LevelOf(ctx, projectID, userID)
	if err != nil {
		return "", err
	}
	return access.Level(raw), nil
}

func (m *Manager) requireLevel(ctx context.Context, projectID, userID int64, min access.Level) (access.Level, error) {
	level, err := m.levelFor(ctx, projectID, userID)
	if err != nil {
		return "", err
	}
	if !access.IsAtLeast(level, min) {
		return "", forbiddenError("insufficient access to this project")
	}
	return level, nil
}

func (m *Manager) getProject(ctx context.Context, projectID int64) (store.Project, error) {
	project, err := m.store.GetProject(ctx, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Project{}, notFoundError("project not found")
	}
	if err != nil {
		return store.Project{}, fmt.Errorf("read project: %w", err)
	}
	return project, nil
}

// getChange loads a change and refuses ids that belong to another project.
func (m *Manager) getChange(ctx context.Context, projectID, changeID int64) (store.Change, error) {
	change, err := m.store.GetChange(ctx, changeID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Change{}, notFoundError("change not found")
	}
	if err != nil {
		return store.Change{}, fmt.Errorf("read change: %w", err)
	}
	if change.ProjectID != projectID {
		return store.Change{}, notFoundError("change not found")
	}
	return change, nil
}

func (m *Manager) invalidateUsers(ctx context.Context, projectID int64, userIDs []int64) {
	if m.invalidate == nil {
		return
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })
	for _, userID := range userIDs {
		if err := m.invalidate.InvalidateUser(ctx, projectID, userID); err != nil {
			log.Printf("invalidate level project=%d user=%d: %v", projectID, userID, err)
		}
	}
}

func (m *Manager) projectLock(projectID int64) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	lock, ok := m.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[projectID] = lock
	}
	return lock
}
