// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/parley/internal/apperrors"
	"github.com/tomtom215/parley/internal/notification"
)

// ListNotifications returns the caller's notifications newest first.
// ?before takes the next_cursor of the previous page.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	user, err := currentUser(r)
	if err != nil {
		rw.AppError(err)
		return
	}

	limit, err := parseLimit(r, defaultNotificationLimit, maxNotificationLimit)
	if err != nil {
		rw.AppError(err)
		return
	}

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			rw.AppError(apperrors.Validation("before must be an RFC 3339 timestamp"))
			return
		}
		before = &t
	}

	items, err := h.notifications.ListNotifications(r.Context(), user.ID, limit, before)
	if err != nil {
		rw.AppError(apperrors.Infrastructure("list notifications", err))
		return
	}
	if items == nil {
		items = []notification.Notification{}
	}

	pagination := &PaginationMeta{Count: len(items), Limit: limit, HasMore: len(items) == limit}
	if pagination.HasMore {
		pagination.NextCursor = items[len(items)-1].CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	rw.SuccessWithPagination(items, pagination)
}

// MarkNotificationRead marks one of the caller's notifications as read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	user, err := currentUser(r)
	if err != nil {
		rw.AppError(err)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		rw.AppError(apperrors.Validation("invalid notification id"))
		return
	}

	n, err := h.notifications.MarkRead(r.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, notification.ErrNotificationNotFound) {
			rw.NotFound("notification not found")
			return
		}
		rw.AppError(apperrors.Infrastructure("mark notification read", err))
		return
	}
	rw.Success(n)
}

// GetPreferences returns the caller's preferences, creating defaults on first read.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	user, err := currentUser(r)
	if err != nil {
		rw.AppError(err)
		return
	}

	prefs, err := h.preferences.Get(r.Context(), user.ID)
	if err != nil {
		rw.AppError(apperrors.Infrastructure("get preferences", err))
		return
	}
	rw.Success(prefs)
}

// UpdatePreferences applies a partial update. Omitted flags keep their value.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	user, err := currentUser(r)
	if err != nil {
		rw.AppError(err)
		return
	}

	var patch notification.PreferencesPatch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPatchBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		rw.AppError(apperrors.Validation("invalid preferences body"))
		return
	}

	prefs, err := h.preferences.Update(r.Context(), user.ID, patch)
	if err != nil {
		rw.AppError(apperrors.Infrastructure("update preferences", err))
		return
	}
	rw.Success(prefs)
}
