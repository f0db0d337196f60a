// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package directory

import (
	"context"
	"time"

	"github.com/tomtom215/parley/internal/cache"
	"github.com/tomtom215/parley/internal/metrics"
)

// Cached wraps a Directory with short-lived LRU caches. Only successful
// lookups are cached; misses and errors always reach the inner directory.
// A user disabled upstream is seen after at most one TTL.
type Cached struct {
	inner  Directory
	users  *cache.LRU[User]
	thumbs *cache.LRU[string]
}

// NewCached caches up to size users and size thumbnails for ttl each.
func NewCached(inner Directory, size int, ttl time.Duration) *Cached {
	return &Cached{
		inner:  inner,
		users:  cache.NewLRU[User](size, ttl),
		thumbs: cache.NewLRU[string](size, ttl),
	}
}

func (c *Cached) GetUser(ctx context.Context, userID string) (*User, error) {
	if u, ok := c.users.Get(userID); ok {
		metrics.CacheLookups.WithLabelValues("user", "hit").Inc()
		return &u, nil
	}
	metrics.CacheLookups.WithLabelValues("user", "miss").Inc()

	u, err := c.inner.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.users.Add(userID, *u)
	return u, nil
}

func (c *Cached) GetPostThumbnail(ctx context.Context, postID string) (string, error) {
	if thumb, ok := c.thumbs.Get(postID); ok {
		metrics.CacheLookups.WithLabelValues("post_thumbnail", "hit").Inc()
		return thumb, nil
	}
	metrics.CacheLookups.WithLabelValues("post_thumbnail", "miss").Inc()

	thumb, err := c.inner.GetPostThumbnail(ctx, postID)
	if err != nil {
		return "", err
	}
	// "" also means the post is missing, which may change.
	if thumb != "" {
		c.thumbs.Add(postID, thumb)
	}
	return thumb, nil
}

// Invalidate drops any cached copy of userID.
func (c *Cached) Invalidate(userID string) {
	c.users.Remove(userID)
}
