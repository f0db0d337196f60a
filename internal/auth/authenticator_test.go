// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/parley/internal/directory"
	"github.com/tomtom215/parley/internal/logging"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

type failingDirectory struct{}

func (failingDirectory) GetUser(context.Context, string) (*directory.User, error) {
	return nil, errors.New("connection refused")
}

func (failingDirectory) GetPostThumbnail(context.Context, string) (string, error) {
	return "", nil
}

func newTestAuthenticator(t *testing.T) (*Authenticator, *JWTManager) {
	t.Helper()
	m := newTestManager(t, time.Hour)
	dir := directory.NewMemoryDirectory()
	dir.PutUser(directory.User{ID: "u1", Username: "ada"})
	dir.PutUser(directory.User{ID: "u2", Username: "bob", Disabled: true})
	return NewAuthenticator(m, dir), m
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	a, m := newTestAuthenticator(t)
	good, _ := m.GenerateToken("u1", "ada")
	disabled, _ := m.GenerateToken("u2", "bob")
	unknown, _ := m.GenerateToken("ghost", "ghost")

	tests := []struct {
		name    string
		setup   func(r *http.Request)
		wantID  string
		wantErr error
	}{
		{"header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+good) }, "u1", nil},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+good) }, "u1", nil},
		{"query param", func(r *http.Request) { r.URL.RawQuery = "token=" + good }, "u1", nil},
		{"missing", func(*http.Request) {}, "", ErrNoCredentials},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, "", ErrInvalidCredentials},
		{"disabled user", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+disabled) }, "", ErrUserDisabled},
		{"unknown user", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+unknown) }, "", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/chat", nil)
			tt.setup(r)

			user, err := a.Authenticate(context.Background(), r)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if user.ID != tt.wantID {
				t.Errorf("user = %s, want %s", user.ID, tt.wantID)
			}
		})
	}
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	t.Parallel()

	a, _ := newTestAuthenticator(t)
	expired, _ := newTestManager(t, -time.Minute).GenerateToken("u1", "ada")

	if _, err := a.AuthenticateToken(context.Background(), expired); !errors.Is(err, ErrExpiredCredentials) {
		t.Errorf("error = %v, want ErrExpiredCredentials", err)
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	a, m := newTestAuthenticator(t)
	good, _ := m.GenerateToken("u1", "ada")

	var seen *directory.User
	var gotStatus int
	h := a.Middleware(func(w http.ResponseWriter, _ *http.Request, status int, _ error) {
		gotStatus = status
		w.WriteHeader(status)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	r.Header.Set("Authorization", "Bearer "+good)
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen == nil || seen.ID != "u1" {
		t.Fatalf("user in context = %+v", seen)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))
	if gotStatus != http.StatusUnauthorized || rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMiddleware_DirectoryOutage(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, time.Hour)
	a := NewAuthenticator(m, failingDirectory{})
	token, _ := m.GenerateToken("u1", "ada")

	var gotStatus int
	h := a.Middleware(func(w http.ResponseWriter, _ *http.Request, status int, _ error) {
		gotStatus = status
	})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run")
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), r)
	if gotStatus != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", gotStatus)
	}
}
