// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package websocket

import (
	"github.com/goccy/go-json"
)

// Client to server events.
const (
	EventJoin          = "chat:join"
	EventLeave         = "chat:leave"
	EventTyping        = "chat:typing"
	EventMessage       = "chat:message"
	EventMessageEdit   = "chat:message:edit"
	EventMessageDelete = "chat:message:delete"
)

// Server to client events. chat:typing and chat:message are shared with
// the client set.
const (
	EventPresence       = "user:presence"
	EventUserJoined     = "chat:user:joined"
	EventUserLeft       = "chat:user:left"
	EventMessageEdited  = "chat:message:edited"
	EventMessageDeleted = "chat:message:deleted"
	EventError          = "error"
)

// Envelope is the frame exchanged on the socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}

// JoinPayload is the data of chat:join.
type JoinPayload struct {
	ChatID string `json:"chatId" validate:"required,notblank,max=100"`
}

// LeavePayload is the data of chat:leave.
type LeavePayload struct {
	ChatID string `json:"chatId" validate:"required,notblank,max=100"`
}

// TypingPayload is the data of chat:typing.
type TypingPayload struct {
	ChatID   string `json:"chatId" validate:"required,notblank,max=100"`
	IsTyping bool   `json:"isTyping"`
}

// MessagePayload is the data of chat:message.
type MessagePayload struct {
	ChatID           string   `json:"chatId" validate:"required,notblank,max=100"`
	Content          string   `json:"content" validate:"max=10000"`
	ReplyToMessageID *int64   `json:"replyToMessageId,omitempty" validate:"omitempty,gt=0"`
	AssetIDs         []string `json:"assetIds,omitempty" validate:"max=10,dive,required,max=100"`
}

// EditPayload is the data of chat:message:edit.
type EditPayload struct {
	MessageID int64  `json:"messageId" validate:"required,gt=0"`
	Content   string `json:"content" validate:"required,notblank,max=10000"`
}

// DeletePayload is the data of chat:message:delete.
type DeletePayload struct {
	MessageID int64 `json:"messageId" validate:"required,gt=0"`
}

// PresenceEvent is the data of user:presence.
type PresenceEvent struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// UserJoinedEvent is the data of chat:user:joined.
type UserJoinedEvent struct {
	ChatID      string `json:"chatId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// UserLeftEvent is the data of chat:user:left.
type UserLeftEvent struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// TypingEvent is the data of the outbound chat:typing.
type TypingEvent struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// MessageDeletedEvent is the data of chat:message:deleted.
type MessageDeletedEvent struct {
	ChatID    string `json:"chatId"`
	MessageID int64  `json:"messageId"`
}

// ErrorEvent is the data of error.
type ErrorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
