package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, emailid FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.Username, &user.Email)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID int64) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, description, created_at
		FROM projects
		WHERE id=$1
	`, projectID).Scan(&item.ID, &item.Path, &item.Description, &item.CreatedAt)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

func (s *PostgresStore) ProjectPathExists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE path=$1)`, path).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check project path: %w", err)
	}
	return exists, nil
}

// CreateProject inserts the project row and its creator permission as one
// transaction. The first change is appended by the caller; a failure there
// must compensate with DeleteProject so no partial project is observable.
func (s *PostgresStore) CreateProject(ctx context.Context, path, description string, creatorID int64) (Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Project{}, fmt.Errorf("begin create project: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var item Project
	err = tx.QueryRowContext(ctx, `
		INSERT INTO projects (path, description)
		VALUES ($1, $2)
		RETURNING id, path, description, created_at
	`, path, description).Scan(&item.ID, &item.Path, &item.Description, &item.CreatedAt)
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO permissions (project_id, user_id, access_level)
		VALUES ($1, $2, 'creator')
	`, item.ID, creatorID); err != nil {
		return Project{}, fmt.Errorf("grant creator: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Project{}, fmt.Errorf("commit create project: %w", err)
	}
	return item, nil
}

// DeleteProject removes the project with its permissions, changes and
// stored content bodies in one transaction.
func (s *PostgresStore) DeleteProject(ctx context.Context, projectID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete project: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, statement := range []string{
		`DELETE FROM change_blobs WHERE project_id=$1`,
		`DELETE FROM changes WHERE project_id=$1`,
		`DELETE FROM permissions WHERE project_id=$1`,
		`DELETE FROM projects WHERE id=$1`,
	} {
		if _, err := tx.ExecContext(ctx, statement, projectID); err != nil {
			return fmt.Errorf("delete project rows: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete project: %w", err)
	}
	return nil
}

func (s *PostgresStore) RenameProject(ctx context.Context, projectID int64, path string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET path=$2 WHERE id=$1`, projectID, path)
	if err != nil {
		return fmt.Errorf("rename project: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProjectDescription(ctx context.Context, projectID int64, description string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET description=$2 WHERE id=$1`, projectID, description)
	if err != nil {
		return fmt.Errorf("update project description: %w", err)
	}
	return nil
}

// ListAllProjects is used to rebuild the search index at startup.
func (s *PostgresStore) ListAllProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, description, created_at FROM projects ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list all projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.Path, &item.Description, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListProjectsFor(ctx context.Context, userID int64) ([]ProjectAccess, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pr.id, pr.path, pr.description, pr.created_at, p.access_level
		FROM projects pr
		JOIN permissions p ON p.project_id = pr.id
		WHERE p.user_id=$1
		ORDER BY pr.id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]ProjectAccess, 0)
	for rows.Next() {
		var item ProjectAccess
		if err := rows.Scan(&item.ID, &item.Path, &item.Description, &item.CreatedAt, &item.AccessLevel); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

// LevelOf returns the user's access level on the project, or "" when the
// user holds no permission.
func (s *PostgresStore) LevelOf(ctx context.Context, projectID, userID int64) (string, error) {
	var level string
	err := s.db.QueryRowContext(ctx, `
		SELECT access_level FROM permissions WHERE project_id=$1 AND user_id=$2
	`, projectID, userID).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read access level: %w", err)
	}
	return level, nil
}

// Grant upserts a permission row; last write wins for the level.
func (s *PostgresStore) Grant(ctx context.Context, projectID, userID int64, level string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permissions (project_id, user_id, access_level)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO UPDATE SET access_level=EXCLUDED.access_level
	`, projectID, userID, level)
	if err != nil {
		return fmt.Errorf("grant permission: %w", err)
	}
	return nil
}

// Revoke removes a permission row. The creator row is untouchable; it only
// disappears with the project itself.
func (s *PostgresStore) Revoke(ctx context.Context, projectID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM permissions
		WHERE project_id=$1 AND user_id=$2 AND access_level <> 'creator'
	`, projectID, userID)
	if err != nil {
		return fmt.Errorf("revoke permission: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListHolders(ctx context.Context, projectID int64) ([]PermissionHolder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.user_id, u.username, p.access_level
		FROM permissions p
		JOIN users u ON u.id = p.user_id
		WHERE p.project_id=$1
		ORDER BY u.username ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list permission holders: %w", err)
	}
	defer rows.Close()

	items := make([]PermissionHolder, 0)
	for rows.Next() {
		var item PermissionHolder
		if err := rows.Scan(&item.UserID, &item.Username, &item.AccessLevel); err != nil {
			return nil, fmt.Errorf("scan permission holder: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permission holders: %w", err)
	}
	return items, nil
}

// ListNonHolders returns users with no permission row on the project,
// excluding excludeUserID (the requester in invite views).
func (s *PostgresStore) ListNonHolders(ctx context.Context, projectID, excludeUserID int64) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.emailid
		FROM users u
		LEFT JOIN permissions p ON p.user_id = u.id AND p.project_id=$1
		WHERE p.user_id IS NULL AND u.id <> $2
		ORDER BY u.username ASC
	`, projectID, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("list non holders: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var item User
		if err := rows.Scan(&item.ID, &item.Username, &item.Email); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

// BulkGrant upserts a level for every user id in one transaction.
func (s *PostgresStore) BulkGrant(ctx context.Context, projectID int64, userIDs []int64, level string) error {
	if len(userIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk grant: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO permissions (project_id, user_id, access_level)
			VALUES ($1, $2, $3)
			ON CONFLICT (project_id, user_id) DO UPDATE SET access_level=EXCLUDED.access_level
		`, projectID, userID, level); err != nil {
			return fmt.Errorf("bulk grant user %d: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk grant: %w", err)
	}
	return nil
}

// ApplyPermissionImport applies a computed permission-set difference to the
// target project as one transaction: adds and modifies are upserts, removes
// are deletes. Creator rows are never deleted even if listed.
func (s *PostgresStore) ApplyPermissionImport(ctx context.Context, targetID int64, upserts []Permission, removeUserIDs []int64) error {
	if len(upserts) == 0 && len(removeUserIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin permission import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, perm := range upserts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO permissions (project_id, user_id, access_level)
			VALUES ($1, $2, $3)
			ON CONFLICT (project_id, user_id) DO UPDATE SET access_level=EXCLUDED.access_level
		`, targetID, perm.UserID, perm.AccessLevel); err != nil {
			return fmt.Errorf("import upsert user %d: %w", perm.UserID, err)
		}
	}
	for _, userID := range removeUserIDs {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM permissions
			WHERE project_id=$1 AND user_id=$2 AND access_level <> 'creator'
		`, targetID, userID); err != nil {
			return fmt.Errorf("import revoke user %d: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit permission import: %w", err)
	}
	return nil
}

// InsertChange appends a change row. The BIGSERIAL id gives every project a
// strictly increasing history order.
func (s *PostgresStore) InsertChange(ctx context.Context, projectID, userID int64, contentRef string) (Change, error) {
	var item Change
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO changes (project_id, user_id, content_ref)
		VALUES ($1, $2, $3)
		RETURNING id, project_id, user_id, COALESCE(version_name, ''), content_ref, created_at
	`, projectID, userID, contentRef).Scan(&item.ID, &item.ProjectID, &item.UserID, &item.VersionName, &item.ContentRef, &item.CreatedAt)
	if err != nil {
		return Change{}, fmt.Errorf("insert change: %w", err)
	}
	return item, nil
}

// LatestChange returns the project's head change, or nil when the project
// has no history.
func (s *PostgresStore) LatestChange(ctx context.Context, projectID int64) (*Change, error) {
	var item Change
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.project_id, c.user_id, u.username, COALESCE(c.version_name, ''), c.content_ref, c.created_at
		FROM changes c
		JOIN users u ON u.id = c.user_id
		WHERE c.project_id=$1
		ORDER BY c.id DESC
		LIMIT 1
	`, projectID).Scan(&item.ID, &item.ProjectID, &item.UserID, &item.Author, &item.VersionName, &item.ContentRef, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest change: %w", err)
	}
	return &item, nil
}

// ListChanges returns the project's history in chronological order. With
// onlyNamed set, unlabeled changes are filtered out.
func (s *PostgresStore) ListChanges(ctx context.Context, projectID int64, onlyNamed bool) ([]Change, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.project_id, c.user_id, u.username, COALESCE(c.version_name, ''), c.content_ref, c.created_at
		FROM changes c
		JOIN users u ON u.id = c.user_id
		WHERE c.project_id=$1
		  AND (NOT $2::boolean OR c.version_name IS NOT NULL)
		ORDER BY c.id ASC
	`, projectID, onlyNamed)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	items := make([]Change, 0)
	for rows.Next() {
		var item Change
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.UserID, &item.Author, &item.VersionName, &item.ContentRef, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetChange(ctx context.Context, changeID int64) (Change, error) {
	var item Change
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.project_id, c.user_id, u.username, COALESCE(c.version_name, ''), c.content_ref, c.created_at
		FROM changes c
		JOIN users u ON u.id = c.user_id
		WHERE c.id=$1
	`, changeID).Scan(&item.ID, &item.ProjectID, &item.UserID, &item.Author, &item.VersionName, &item.ContentRef, &item.CreatedAt)
	if err != nil {
		return Change{}, err
	}
	return item, nil
}

// SetVersionName labels a change. The project id guard prevents labeling a
// change through another project's id.
func (s *PostgresStore) SetVersionName(ctx context.Context, changeID, projectID int64, name string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE changes SET version_name=$3
		WHERE id=$1 AND project_id=$2
	`, changeID, projectID, name)
	if err != nil {
		return false, fmt.Errorf("set version name: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set version name rows: %w", err)
	}
	return affected > 0, nil
}
