// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/tomtom215/parley/internal/apperrors"
)

type sendRequest struct {
	ChatID   string   `json:"chatId" validate:"required"`
	Content  string   `json:"content" validate:"required,notblank,max=20"`
	AssetIDs []string `json:"assetIds,omitempty" validate:"max=2"`
	Kind     string   `json:"kind,omitempty" validate:"omitempty,oneof=text image"`
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same singleton instance")
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name     string
		input    sendRequest
		wantMsgs []string
	}{
		{
			name:  "valid",
			input: sendRequest{ChatID: "c1", Content: "hello"},
		},
		{
			name:     "missing chat uses json name",
			input:    sendRequest{Content: "hello"},
			wantMsgs: []string{"chatId is required"},
		},
		{
			name:     "whitespace content",
			input:    sendRequest{ChatID: "c1", Content: "  \n\t"},
			wantMsgs: []string{"content must not be blank"},
		},
		{
			name:     "content too long",
			input:    sendRequest{ChatID: "c1", Content: strings.Repeat("x", 21)},
			wantMsgs: []string{"content must be at most 20 characters"},
		},
		{
			name:     "too many assets",
			input:    sendRequest{ChatID: "c1", Content: "x", AssetIDs: []string{"a", "b", "c"}},
			wantMsgs: []string{"assetIds must contain at most 2 items"},
		},
		{
			name:     "oneof",
			input:    sendRequest{ChatID: "c1", Content: "x", Kind: "video"},
			wantMsgs: []string{"kind must be one of: text image"},
		},
		{
			name:     "multiple failures",
			input:    sendRequest{},
			wantMsgs: []string{"chatId is required", "content is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ve := ValidateStruct(&tt.input)
			if len(tt.wantMsgs) == 0 {
				if ve != nil {
					t.Fatalf("unexpected validation error: %v", ve)
				}
				return
			}
			if ve == nil {
				t.Fatal("expected validation error")
			}
			if len(ve.Fields) != len(tt.wantMsgs) {
				t.Fatalf("got %d field errors (%v), want %d", len(ve.Fields), ve, len(tt.wantMsgs))
			}
			for i, want := range tt.wantMsgs {
				if ve.Fields[i].Message != want {
					t.Errorf("field %d message = %q, want %q", i, ve.Fields[i].Message, want)
				}
			}
		})
	}
}

func TestValidateReturnsAppError(t *testing.T) {
	err := Validate(&sendRequest{Content: "x"})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation kind, got %v", err)
	}
	code, msg := apperrors.Public(err)
	if code != apperrors.CodeValidation || msg != "chatId is required" {
		t.Errorf("Public() = (%q, %q)", code, msg)
	}

	if err := Validate(&sendRequest{ChatID: "c", Content: "x"}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
