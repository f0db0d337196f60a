// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("create message: %w", Forbidden("not a participant of this chat"))

	if !errors.Is(wrapped, ErrForbidden) {
		t.Error("expected wrapped forbidden error to match ErrForbidden")
	}
	if errors.Is(wrapped, ErrNotFound) {
		t.Error("forbidden error must not match ErrNotFound")
	}
}

func TestPublic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode string
		wantMsg  string
	}{
		{"not found", NotFound("message not found"), CodeNotFound, "message not found"},
		{"validation", Validation("content is required"), CodeValidation, "content is required"},
		{"infrastructure hides cause", Infrastructure("insert message", errors.New("pq: connection refused")), CodeInternal, "internal error"},
		{"unclassified", errors.New("boom"), CodeInternal, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, msg := Public(tt.err)
			if code != tt.wantCode || msg != tt.wantMsg {
				t.Errorf("Public() = (%q, %q), want (%q, %q)", code, msg, tt.wantCode, tt.wantMsg)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{Unauthorized("bad token"), http.StatusUnauthorized},
		{Forbidden("x"), http.StatusForbidden},
		{NotFound("x"), http.StatusNotFound},
		{Validation("x"), http.StatusBadRequest},
		{errors.New("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestInfrastructureUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("smtp timeout")
	err := Infrastructure("send mail", cause)
	if !errors.Is(err, cause) {
		t.Error("expected infrastructure error to unwrap to its cause")
	}
	if err.Error() != "send mail: smtp timeout" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
