// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/parley/internal/directory"
)

// Authentication errors. All of them map to HTTP 401.
var (
	ErrNoCredentials      = errors.New("no credentials provided")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrExpiredCredentials = errors.New("credentials expired")
	ErrUserDisabled       = errors.New("user is disabled")
)

// TokenQueryParam is accepted on WebSocket handshakes, where browsers
// cannot set an Authorization header.
const TokenQueryParam = "token"

// Authenticator resolves a request's bearer token to an enabled user.
type Authenticator struct {
	manager *JWTManager
	users   directory.Directory
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(manager *JWTManager, users directory.Directory) *Authenticator {
	return &Authenticator{manager: manager, users: users}
}

// Authenticate extracts the token from the Authorization header or the
// token query parameter, verifies it and loads the user.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*directory.User, error) {
	tokenStr := ExtractToken(r)
	if tokenStr == "" {
		return nil, ErrNoCredentials
	}
	return a.AuthenticateToken(ctx, tokenStr)
}

// AuthenticateToken verifies tokenStr and loads its user.
func (a *Authenticator) AuthenticateToken(ctx context.Context, tokenStr string) (*directory.User, error) {
	claims, err := a.manager.ValidateToken(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredentials
		}
		return nil, ErrInvalidCredentials
	}

	user, err := a.users.GetUser(ctx, claims.UserID())
	if errors.Is(err, directory.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.Disabled {
		return nil, ErrUserDisabled
	}
	return user, nil
}

// ExtractToken returns the bearer token from the Authorization header,
// falling back to the token query parameter.
func ExtractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if token := strings.TrimSpace(parts[1]); token != "" {
				return token
			}
		}
	}
	return strings.TrimSpace(r.URL.Query().Get(TokenQueryParam))
}

// IsAuthError reports whether err is a credential failure rather than a
// directory outage.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNoCredentials) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrExpiredCredentials) ||
		errors.Is(err, ErrUserDisabled)
}
