// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/parley/internal/apperrors"
	"github.com/tomtom215/parley/internal/auth"
	"github.com/tomtom215/parley/internal/chat"
	"github.com/tomtom215/parley/internal/directory"
	"github.com/tomtom215/parley/internal/notification"
)

// MessageHistory reads chat history for a participant.
type MessageHistory interface {
	FetchMessages(ctx context.Context, userID, chatID string, cursor *int64, limit int) (*chat.Page, error)
}

// NotificationReader lists and acknowledges a user's web notifications.
type NotificationReader interface {
	ListNotifications(ctx context.Context, userID string, limit int, before *time.Time) ([]notification.Notification, error)
	MarkRead(ctx context.Context, userID string, id uuid.UUID) (*notification.Notification, error)
}

// PreferenceManager reads and patches notification preferences.
type PreferenceManager interface {
	Get(ctx context.Context, userID string) (*notification.Preferences, error)
	Update(ctx context.Context, userID string, patch notification.PreferencesPatch) (*notification.Preferences, error)
}

// CheckFunc probes one dependency for the readiness endpoint.
type CheckFunc func(ctx context.Context) error

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
	maxPatchBodyBytes        = 16 << 10
	readinessTimeout         = 3 * time.Second
)

// Handler serves the REST endpoints.
type Handler struct {
	messages      MessageHistory
	notifications NotificationReader
	preferences   PreferenceManager
	checks        map[string]CheckFunc
	startTime     time.Time
}

// NewHandler creates the REST handler set.
func NewHandler(messages MessageHistory, notifications NotificationReader, preferences PreferenceManager, checks map[string]CheckFunc) *Handler {
	return &Handler{
		messages:      messages,
		notifications: notifications,
		preferences:   preferences,
		checks:        checks,
		startTime:     time.Now(),
	}
}

// currentUser returns the authenticated user. Routes using it sit behind
// the auth middleware, so a missing user is a wiring bug.
func currentUser(r *http.Request) (*directory.User, error) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		return nil, apperrors.Unauthorized("authentication required")
	}
	return user, nil
}

// parseLimit reads ?limit, returning def when absent.
func parseLimit(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, apperrors.Validation("limit must be between 1 and " + strconv.Itoa(max))
	}
	return n, nil
}
