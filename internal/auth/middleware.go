// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package auth

import (
	"context"
	"net/http"

	"github.com/tomtom215/parley/internal/directory"
	"github.com/tomtom215/parley/internal/logging"
)

type contextKey string

const userContextKey contextKey = "auth_user"

// ContextWithUser stores the authenticated user.
func ContextWithUser(ctx context.Context, user *directory.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the authenticated user or nil.
func UserFromContext(ctx context.Context) *directory.User {
	user, _ := ctx.Value(userContextKey).(*directory.User)
	return user
}

// ErrorWriter renders an authentication failure. The API package supplies
// one that writes its JSON envelope.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, err error)

// Middleware rejects unauthenticated requests and stores the user in the
// request context.
func (a *Authenticator) Middleware(onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := a.Authenticate(r.Context(), r)
			if err != nil {
				status := http.StatusUnauthorized
				if !IsAuthError(err) {
					status = http.StatusServiceUnavailable
					logging.Ctx(r.Context()).Error().Err(err).Msg("Authentication lookup failed")
				} else {
					logging.Ctx(r.Context()).Debug().Err(err).Msg("Authentication rejected")
				}
				onError(w, r, status, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}
