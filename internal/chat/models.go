// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package chat persists chat messages and enforces who may write them.
//
// The Service owns every participant, ownership and reply check; the
// Repository only reads and writes rows inside the transaction it is given.
package chat

import "time"

// Message is a chat message as stored and as broadcast to room members.
type Message struct {
	ID               int64      `json:"id"`
	ChatID           string     `json:"chatId"`
	SenderID         string     `json:"senderId"`
	Content          string     `json:"content"`
	ReplyToMessageID *int64     `json:"replyToMessageId,omitempty"`
	IsEdited         bool       `json:"isEdited"`
	EditedAt         *time.Time `json:"editedAt,omitempty"`
	IsDeleted        bool       `json:"isDeleted"`
	DeletedAt        *time.Time `json:"deletedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	Assets           []Asset    `json:"assets,omitempty"`
}

// Asset is an uploaded file that can be attached to a message.
type Asset struct {
	ID         string `json:"id"`
	OwnerID    string `json:"-"`
	StorageKey string `json:"-"`
	MimeType   string `json:"mimeType"`
	SizeBytes  int64  `json:"sizeBytes"`
	MessageID  *int64 `json:"-"`
	URL        string `json:"url"`
}

// Participant is a user's membership in a chat.
type Participant struct {
	ChatID            string
	UserID            string
	JoinedAt          time.Time
	LeftAt            *time.Time
	LastReadMessageID *int64
}

// Active reports whether the participant has not left the chat.
func (p *Participant) Active() bool {
	return p.LeftAt == nil
}

// Page is one page of chat history in chronological order.
type Page struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
	// Limit is the page size applied after defaults and clamping.
	Limit      int    `json:"limit"`
	NextCursor *int64 `json:"nextCursor,omitempty"`
}

// CreateMessageInput is the input to Service.CreateMessage.
type CreateMessageInput struct {
	ChatID           string
	SenderID         string
	Content          string
	ReplyToMessageID *int64
	AssetIDs         []string
}
