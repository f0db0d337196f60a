// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotificationNotFound is returned when no notification matches.
var ErrNotificationNotFound = errors.New("notification not found")

// Store persists web notifications.
type Store interface {
	InsertNotification(ctx context.Context, n *Notification) error
	MarkEmailSent(ctx context.Context, id uuid.UUID, at time.Time) error
	// ListNotifications returns up to limit notifications newest first,
	// strictly older than before when it is set.
	ListNotifications(ctx context.Context, userID string, limit int, before *time.Time) ([]Notification, error)
	MarkRead(ctx context.Context, userID string, id uuid.UUID) (*Notification, error)
}
