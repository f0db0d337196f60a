// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package chat

import (
	"context"
	"errors"
	"time"
)

// Repository errors. The Service translates them into apperrors.
var (
	ErrChatNotFound        = errors.New("chat not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrMessageNotFound     = errors.New("message not found")
)

// Queries are the row-level operations available inside and outside a
// transaction.
type Queries interface {
	ChatExists(ctx context.Context, chatID string) (bool, error)
	GetParticipant(ctx context.Context, chatID, userID string) (*Participant, error)
	ActiveParticipantIDs(ctx context.Context, chatID string) ([]string, error)

	// GetMessage returns the message with id. forUpdate locks the row for the
	// rest of the transaction.
	GetMessage(ctx context.Context, id int64, forUpdate bool) (*Message, error)
	InsertMessage(ctx context.Context, m *Message) error
	UpdateMessageContent(ctx context.Context, id int64, content string, editedAt time.Time) error
	SoftDeleteMessage(ctx context.Context, id int64, deletedAt time.Time) error
	// ListMessages returns up to limit messages with id < before (all when
	// before is nil), newest first.
	ListMessages(ctx context.Context, chatID string, before *int64, limit int) ([]Message, error)

	// GetAssets returns the assets that exist among ids.
	GetAssets(ctx context.Context, ids []string) ([]Asset, error)
	AttachAssets(ctx context.Context, messageID int64, assetIDs []string) error
	AssetsForMessages(ctx context.Context, messageIDs []int64) (map[int64][]Asset, error)
}

// Repository adds transactions to Queries.
type Repository interface {
	Queries
	// InTx runs fn in a transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(q Queries) error) error
}
