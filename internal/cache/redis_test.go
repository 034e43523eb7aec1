package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

type countingSource struct {
	levels map[string]string
	calls  int
}

func (s *countingSource) LevelOf(_ context.Context, projectID, userID int64) (string, error) {
	s.calls++
	return s.levels[key(projectID, userID)], nil
}

func key(projectID, userID int64) string {
	return fmt.Sprintf("%d:%d", projectID, userID)
}

func setupTestCache(t *testing.T, source LevelSource) (*PermissionCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	cache, err := New("redis://"+s.Addr(), source, time.Minute)
	if err != nil {
		t.Fatalf("failed to create permission cache: %v", err)
	}
	return cache, s
}

func TestLevelOfFillsOnMiss(t *testing.T) {
	source := &countingSource{levels: map[string]string{key(1, 2): "admin"}}
	cache, s := setupTestCache(t, source)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		level, err := cache.LevelOf(ctx, 1, 2)
		if err != nil {
			t.Fatalf("LevelOf failed: %v", err)
		}
		if level != "admin" {
			t.Errorf("expected admin, got %s", level)
		}
	}
	if source.calls != 1 {
		t.Errorf("expected 1 source call, got %d", source.calls)
	}
}

func TestLevelOfCachesAbsence(t *testing.T) {
	source := &countingSource{levels: map[string]string{}}
	cache, s := setupTestCache(t, source)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		level, err := cache.LevelOf(ctx, 1, 2)
		if err != nil {
			t.Fatalf("LevelOf failed: %v", err)
		}
		if level != "" {
			t.Errorf("expected empty level, got %s", level)
		}
	}
	if source.calls != 1 {
		t.Errorf("expected 1 source call for cached absence, got %d", source.calls)
	}
}

func TestInvalidateUserForcesRefetch(t *testing.T) {
	source := &countingSource{levels: map[string]string{key(1, 2): "viewer"}}
	cache, s := setupTestCache(t, source)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	if _, err := cache.LevelOf(ctx, 1, 2); err != nil {
		t.Fatalf("LevelOf failed: %v", err)
	}

	// Simulate a grant: the source changes and the writer invalidates.
	source.levels[key(1, 2)] = "admin"
	if err := cache.InvalidateUser(ctx, 1, 2); err != nil {
		t.Fatalf("InvalidateUser failed: %v", err)
	}

	level, err := cache.LevelOf(ctx, 1, 2)
	if err != nil {
		t.Fatalf("LevelOf after invalidate failed: %v", err)
	}
	if level != "admin" {
		t.Errorf("expected refreshed level admin, got %s", level)
	}
	if source.calls != 2 {
		t.Errorf("expected 2 source calls, got %d", source.calls)
	}
}

func TestInvalidateProjectDropsAllUsers(t *testing.T) {
	source := &countingSource{levels: map[string]string{
		key(1, 2): "viewer",
		key(1, 3): "admin",
		key(7, 2): "collaborator",
	}}
	cache, s := setupTestCache(t, source)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	for _, pair := range [][2]int64{{1, 2}, {1, 3}, {7, 2}} {
		if _, err := cache.LevelOf(ctx, pair[0], pair[1]); err != nil {
			t.Fatalf("LevelOf failed: %v", err)
		}
	}

	if err := cache.InvalidateProject(ctx, 1); err != nil {
		t.Fatalf("InvalidateProject failed: %v", err)
	}

	before := source.calls
	// Project 1 entries must refetch, project 7 must still be cached.
	if _, err := cache.LevelOf(ctx, 1, 2); err != nil {
		t.Fatalf("LevelOf failed: %v", err)
	}
	if _, err := cache.LevelOf(ctx, 1, 3); err != nil {
		t.Fatalf("LevelOf failed: %v", err)
	}
	if _, err := cache.LevelOf(ctx, 7, 2); err != nil {
		t.Fatalf("LevelOf failed: %v", err)
	}
	if got := source.calls - before; got != 2 {
		t.Errorf("expected 2 refetches after project invalidation, got %d", got)
	}
}

func TestEntriesExpire(t *testing.T) {
	source := &countingSource{levels: map[string]string{key(1, 2): "viewer"}}
	s := miniredis.RunT(t)
	defer s.Close()

	cache, err := New("redis://"+s.Addr(), source, time.Second)
	if err != nil {
		t.Fatalf("failed to create permission cache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	if _, err := cache.LevelOf(ctx, 1, 2); err != nil {
		t.Fatalf("LevelOf failed: %v", err)
	}

	// Fast-forward time in miniredis
	s.FastForward(2 * time.Second)

	if _, err := cache.LevelOf(ctx, 1, 2); err != nil {
		t.Fatalf("LevelOf after expiry failed: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("expected expired entry to refetch, got %d calls", source.calls)
	}
}
