// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package apperrors defines the error taxonomy shared by the gateway, the
// HTTP API and the stores. Each error carries a Kind that maps to a stable
// wire code and an HTTP status, so a store can report "not a participant"
// once and every transport renders it the same way.
package apperrors

import (
	"errors"
	"net/http"
)

// Kind classifies an error for reporting.
type Kind int

const (
	KindInfrastructure Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindValidation
)

// Wire codes sent to clients in socket error events and API responses.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL_ERROR"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrForbidden)
// works for every forbidden error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrUnauthorized = &Error{Kind: KindUnauthorized, Code: CodeUnauthorized, Message: "unauthorized"}
	ErrForbidden    = &Error{Kind: KindForbidden, Code: CodeForbidden, Message: "forbidden"}
	ErrNotFound     = &Error{Kind: KindNotFound, Code: CodeNotFound, Message: "not found"}
	ErrValidation   = &Error{Kind: KindValidation, Code: CodeValidation, Message: "validation failed"}
)

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: msg}
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: msg}
}

// Infrastructure wraps a transient backend failure (database, queue, mail).
func Infrastructure(msg string, err error) *Error {
	return &Error{Kind: KindInfrastructure, Code: CodeInternal, Message: msg, Err: err}
}

// KindOf returns the Kind of err, treating unclassified errors as infrastructure.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInfrastructure
}

// Public returns the code and message that may be shown to a client.
// Infrastructure errors never leak their cause.
func Public(err error) (code, message string) {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != KindInfrastructure {
		return ae.Code, ae.Message
	}
	return CodeInternal, "internal error"
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
