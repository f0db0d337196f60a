// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/parley/internal/apperrors"
)

// maxMessageLimit is only a parse bound; the chat service applies its own cap.
const maxMessageLimit = 1000

// ChatMessages returns one page of history older than ?cursor.
func (h *Handler) ChatMessages(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	user, err := currentUser(r)
	if err != nil {
		rw.AppError(err)
		return
	}

	var cursor *int64
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			rw.AppError(apperrors.Validation("cursor must be a positive message id"))
			return
		}
		cursor = &id
	}

	limit, err := parseLimit(r, 0, maxMessageLimit)
	if err != nil {
		rw.AppError(err)
		return
	}

	page, err := h.messages.FetchMessages(r.Context(), user.ID, chi.URLParam(r, "chatID"), cursor, limit)
	if err != nil {
		rw.AppError(err)
		return
	}

	pagination := &PaginationMeta{Count: len(page.Messages), Limit: page.Limit, HasMore: page.HasMore}
	if page.HasMore && page.NextCursor != nil {
		pagination.NextCursor = strconv.FormatInt(*page.NextCursor, 10)
	}
	rw.SuccessWithPagination(page.Messages, pagination)
}
