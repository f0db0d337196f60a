// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package notification moves notification events from producers through the
// queue to stored notification rows and templated email.
//
// The Producer consults the recipient's preferences and publishes an event
// carrying the resolved sendWeb and sendEmail flags. The Consumer reads the
// queue one message at a time, writes the web notification, sends the email
// and acknowledges. Password reset mail bypasses preferences entirely.
package notification

import (
	"time"

	"github.com/google/uuid"
)

// Queue subjects.
const (
	TopicCreated       = "notification.created"
	TopicPasswordReset = "notification.password_reset"
	TopicDeadLetter    = "notification.dead_letter"
)

// Type is the kind of notification.
type Type string

const (
	TypeLikePost       Type = "LIKE_POST"
	TypeLikeComment    Type = "LIKE_COMMENT"
	TypeComment        Type = "COMMENT"
	TypeCommentReply   Type = "COMMENT_REPLY"
	TypeFollowRequest  Type = "FOLLOW_REQUEST"
	TypeFollowAccepted Type = "FOLLOW_ACCEPTED"
	TypeNewFollower    Type = "NEW_FOLLOWER"
	TypeMention        Type = "MENTION"
	TypeNewMessage     Type = "NEW_MESSAGE"
	TypeSystem         Type = "SYSTEM"
)

// passwordResetType is the type tag of password reset payloads.
const passwordResetType = "password_reset"

// Payload is a notification request and the body of notification.created.
// Type is open: kinds without a preference category are delivered web-only
// and rendered with the generic email template.
type Payload struct {
	UserID     string         `json:"userId" validate:"required,notblank"`
	Type       Type           `json:"type" validate:"required,max=50"`
	Title      string         `json:"title" validate:"required,max=200"`
	Message    string         `json:"message" validate:"required,max=2000"`
	EntityType string         `json:"entityType,omitempty" validate:"omitempty,max=50"`
	EntityID   string         `json:"entityId,omitempty" validate:"omitempty,max=100"`
	ActorID    string         `json:"actorId,omitempty" validate:"omitempty,max=100"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	SendWeb    *bool          `json:"sendWeb,omitempty"`
	SendEmail  *bool          `json:"sendEmail,omitempty"`
}

// PasswordResetPayload is the body of notification.password_reset.
type PasswordResetPayload struct {
	Type     string `json:"type"`
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required"`
	ResetURL string `json:"resetUrl" validate:"required,url"`
}

// Notification is a stored web notification.
type Notification struct {
	ID          uuid.UUID      `json:"id"`
	UserID      string         `json:"userId"`
	Type        Type           `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata"`
	IsRead      bool           `json:"isRead"`
	ReadAt      *time.Time     `json:"readAt,omitempty"`
	EmailSentAt *time.Time     `json:"emailSentAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Metadata keys written by the consumer.
const (
	MetaActorID        = "actorId"
	MetaEntityType     = "entityType"
	MetaEntityID       = "entityId"
	MetaActorAvatarURL = "actorAvatarUrl"
	MetaThumbnailURL   = "thumbnailUrl"
)

func boolPtr(v bool) *bool { return &v }
