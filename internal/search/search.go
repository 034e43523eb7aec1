package search

// Result is a single project hit.
type Result struct {
	ProjectID   int64  `json:"projectId"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Searcher can execute a project search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID          int64  `json:"id"`
	Path        string `json:"path"`
	Description string `json:"description"`
}
