// Package cache provides a Redis read-through cache for access levels.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// absentMarker caches the fact that a user holds no permission, so repeated
// checks by non-holders do not hit the database either.
const absentMarker = "-"

// LevelSource is the lookup the cache fills from on a miss.
type LevelSource interface {
	LevelOf(ctx context.Context, projectID, userID int64) (string, error)
}

// PermissionCache answers access-level lookups from Redis and falls back to
// the source on a miss. Permission writers must invalidate the affected keys.
type PermissionCache struct {
	client *redis.Client
	source LevelSource
	ttl    time.Duration
	prefix string
}

// New creates a Redis-backed permission cache
func New(redisURL string, source LevelSource, ttl time.Duration) (*PermissionCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, source, ttl), nil
}

// NewWithClient creates a cache from an existing Redis client
func NewWithClient(client *redis.Client, source LevelSource, ttl time.Duration) *PermissionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PermissionCache{
		client: client,
		source: source,
		ttl:    ttl,
		prefix: "perm:",
	}
}

// key generates the Redis key for one project/user pair
func (c *PermissionCache) key(projectID, userID int64) string {
	return fmt.Sprintf("%s%d:%d", c.prefix, projectID, userID)
}

// LevelOf returns the user's access level on the project, "" when the user
// holds none. A Redis failure falls through to the source; the cache never
// turns a readable lookup into an error.
func (c *PermissionCache) LevelOf(ctx context.Context, projectID, userID int64) (string, error) {
	key := c.key(projectID, userID)
	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		if cached == absentMarker {
			return "", nil
		}
		return cached, nil
	}

	level, srcErr := c.source.LevelOf(ctx, projectID, userID)
	if srcErr != nil {
		return "", srcErr
	}

	value := level
	if value == "" {
		value = absentMarker
	}
	// Best-effort fill; a failed Set only costs the next lookup.
	_ = c.client.Set(ctx, key, value, c.ttl).Err()
	return level, nil
}

// InvalidateUser drops the cached level for one project/user pair.
func (c *PermissionCache) InvalidateUser(ctx context.Context, projectID, userID int64) error {
	if err := c.client.Del(ctx, c.key(projectID, userID)).Err(); err != nil {
		return fmt.Errorf("invalidate level: %w", err)
	}
	return nil
}

// InvalidateProject drops every cached level of one project. Used after bulk
// permission writes and project deletion.
func (c *PermissionCache) InvalidateProject(ctx context.Context, projectID int64) error {
	pattern := fmt.Sprintf("%s%d:*", c.prefix, projectID)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("invalidate project levels: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan project levels: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable
func (c *PermissionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *PermissionCache) Close() error {
	return c.client.Close()
}
