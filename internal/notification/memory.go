// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store and PreferenceStore.
type MemoryStore struct {
	mu            sync.Mutex
	notifications map[uuid.UUID]*Notification
	preferences   map[string]Preferences
}

var (
	_ Store           = (*MemoryStore)(nil)
	_ PreferenceStore = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notifications: make(map[uuid.UUID]*Notification),
		preferences:   make(map[string]Preferences),
	}
}

func (m *MemoryStore) GetPreferences(_ context.Context, userID string) (*Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.preferences[userID]
	if !ok {
		return nil, ErrPreferencesNotFound
	}
	return &p, nil
}

func (m *MemoryStore) InsertPreferences(_ context.Context, p Preferences) (*Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.preferences[p.UserID]; ok {
		return nil, ErrPreferencesExist
	}
	p.UpdatedAt = time.Now().UTC()
	m.preferences[p.UserID] = p
	return &p, nil
}

func (m *MemoryStore) UpdatePreferences(_ context.Context, userID string, patch PreferencesPatch) (*Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.preferences[userID]
	if !ok {
		return nil, ErrPreferencesNotFound
	}
	patch.Apply(&p)
	p.UpdatedAt = time.Now().UTC()
	m.preferences[userID] = p
	return &p, nil
}

func (m *MemoryStore) InsertNotification(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	n.CreatedAt = time.Now().UTC()
	stored := *n
	m.notifications[n.ID] = &stored
	return nil
}

func (m *MemoryStore) MarkEmailSent(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return ErrNotificationNotFound
	}
	n.EmailSentAt = &at
	return nil
}

func (m *MemoryStore) ListNotifications(_ context.Context, userID string, limit int, before *time.Time) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, 0)
	for _, n := range m.notifications {
		if n.UserID != userID {
			continue
		}
		if before != nil && !n.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) MarkRead(_ context.Context, userID string, id uuid.UUID) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return nil, ErrNotificationNotFound
	}
	if !n.IsRead {
		now := time.Now().UTC()
		n.IsRead = true
		n.ReadAt = &now
	}
	out := *n
	return &out, nil
}
