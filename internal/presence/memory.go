// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package presence

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/parley/internal/metrics"
)

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{users: make(map[string]map[string]struct{})}
}

func (r *MemoryRegistry) AddConnection(_ context.Context, userID, connID string) (bool, error) {
	if err := checkIDs(userID, connID); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.users[userID] = conns
	}
	conns[connID] = struct{}{}
	metrics.PresenceOnlineUsers.Set(float64(len(r.users)))
	return !ok, nil
}

func (r *MemoryRegistry) RemoveConnection(_ context.Context, userID, connID string) (bool, error) {
	if err := checkIDs(userID, connID); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		return false, nil
	}
	if _, held := conns[connID]; !held {
		return false, nil
	}
	delete(conns, connID)
	if len(conns) > 0 {
		return false, nil
	}
	delete(r.users, userID)
	metrics.PresenceOnlineUsers.Set(float64(len(r.users)))
	return true, nil
}

func (r *MemoryRegistry) Connections(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.users[userID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (r *MemoryRegistry) IsOnline(_ context.Context, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0, nil
}

func (r *MemoryRegistry) OnlineUsers(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.users))
	for id := range r.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
