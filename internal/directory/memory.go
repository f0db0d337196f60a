// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package directory

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-process Directory used by tests and local runs
// without a platform database.
type MemoryDirectory struct {
	mu     sync.RWMutex
	users  map[string]User
	thumbs map[string]string
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:  make(map[string]User),
		thumbs: make(map[string]string),
	}
}

// PutUser adds or replaces a user.
func (d *MemoryDirectory) PutUser(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

// PutPost sets the thumbnail for a post.
func (d *MemoryDirectory) PutPost(postID, thumbnailURL string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.thumbs[postID] = thumbnailURL
}

func (d *MemoryDirectory) GetUser(_ context.Context, userID string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (d *MemoryDirectory) GetPostThumbnail(_ context.Context, postID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.thumbs[postID], nil
}
