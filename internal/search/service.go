package search

import (
	"context"
	"log"

	"waypoint/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) ([]Result, int, error) {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return results, total, nil
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}
	return s.pgfts.Search(q)
}

// SearchProjectIDs returns matching project ids in rank order. Callers apply
// their own access filtering on the ids.
func (s *Service) SearchProjectIDs(_ context.Context, text string, limit int) ([]int64, error) {
	results, _, err := s.Search(Query{Text: text, Limit: limit})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(results))
	for _, result := range results {
		ids = append(ids, result.ProjectID)
	}
	return ids, nil
}

// IndexProject indexes a project (fire-and-forget to Meilisearch).
func (s *Service) IndexProject(_ context.Context, project store.Project) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := ProjectRecord{ID: project.ID, Path: project.Path, Description: project.Description}
	go func() {
		if err := s.meili.IndexProject(record); err != nil {
			log.Printf("search: index project %d: %v", record.ID, err)
		}
	}()
}

// RemoveProject removes a project from the search index (fire-and-forget).
func (s *Service) RemoveProject(_ context.Context, projectID int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteProject(projectID); err != nil {
			log.Printf("search: delete project %d: %v", projectID, err)
		}
	}()
}

// ReindexAll pushes every project into Meilisearch, used during startup when
// the index is empty or stale.
func (s *Service) ReindexAll(projects []store.Project) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	records := make([]ProjectRecord, 0, len(projects))
	for _, project := range projects {
		records = append(records, ProjectRecord{ID: project.ID, Path: project.Path, Description: project.Description})
	}
	if err := s.meili.IndexProjects(records); err != nil {
		log.Printf("search: reindex projects: %v", err)
	}
}
