package store

import "time"

// User rows are owned by the external account service. This core only ever
// reads them.
type User struct {
	ID       int64
	Username string
	Email    string
}

type Project struct {
	ID          int64
	Path        string
	Description string
	CreatedAt   time.Time
}

// ProjectAccess is a project joined with the requesting user's access level,
// as returned by ListProjectsFor.
type ProjectAccess struct {
	Project
	AccessLevel string
}

type Permission struct {
	ProjectID   int64
	UserID      int64
	AccessLevel string
}

// PermissionHolder is a permission row joined with the holder's username.
type PermissionHolder struct {
	UserID      int64
	Username    string
	AccessLevel string
}

// Change is one immutable entry in a project's content history. The body
// lives behind ContentRef in a content store; the row never changes after
// insert.
type Change struct {
	ID          int64
	ProjectID   int64
	UserID      int64
	Author      string
	VersionName string
	ContentRef  string
	CreatedAt   time.Time
}

// Blob is a stored content body for the snapshot and diff content-store
// backends. Kind is "full" for a complete snapshot or "patch" for a delta
// against ParentRef.
type Blob struct {
	Ref       string
	ProjectID int64
	Kind      string
	ParentRef string
	Body      string
	CreatedAt time.Time
}
